package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/wellnesslog/internal/db"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	descriptionEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	descriptionPolicy = bluemonday.UGCPolicy()
)

// CatalogService 维护任务目录，引擎其余部分只读取目录
type CatalogService struct {
	db *gorm.DB
}

// CatalogFilter 描述后台列表过滤条件
type CatalogFilter struct {
	Category   string
	ActiveOnly bool
}

// MissionInput 定义创建/更新任务定义时可配置字段
type MissionInput struct {
	Code            string
	Title           string
	Description     string
	Category        string
	SubCategory     string
	TargetValue     float64
	Unit            string
	Points          int
	Difficulty      int
	Period          string
	IsActive        bool
	TrackingMapping db.TrackingMapping
}

// NewCatalogService 构造 CatalogService
func NewCatalogService(gdb *gorm.DB) *CatalogService {
	return &CatalogService{db: gdb}
}

// List 返回任务定义，按类别、难度、目标值排序
func (s *CatalogService) List(ctx context.Context, filter CatalogFilter) ([]db.MissionDefinition, error) {
	query := s.db.WithContext(ctx).Model(&db.MissionDefinition{})
	if filter.Category != "" {
		query = query.Where("category = ?", strings.ToLower(strings.TrimSpace(filter.Category)))
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var defs []db.MissionDefinition
	if err := query.Order("category ASC, difficulty ASC, target_value ASC, id ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	return defs, nil
}

// Get 根据 ID 获取任务定义
func (s *CatalogService) Get(ctx context.Context, id uint) (*db.MissionDefinition, error) {
	var def db.MissionDefinition
	if err := s.db.WithContext(ctx).First(&def, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMissionNotFound
		}
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return &def, nil
}

// Create 新建任务定义
func (s *CatalogService) Create(ctx context.Context, input MissionInput) (*db.MissionDefinition, error) {
	input, err := normalizeMissionInput(input)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.MissionDefinition{}).Where("code = ?", input.Code).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check mission code: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: code %q already exists", ErrInvalidMissionDefinition, input.Code)
	}

	def := db.MissionDefinition{}
	applyMissionInput(&def, input)
	if err := s.db.WithContext(ctx).Create(&def).Error; err != nil {
		return nil, fmt.Errorf("create mission: %w", err)
	}
	return &def, nil
}

// Update 更新任务定义。已分配的用户任务在下一次重算时使用新定义。
func (s *CatalogService) Update(ctx context.Context, id uint, input MissionInput) (*db.MissionDefinition, error) {
	input, err := normalizeMissionInput(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var clash int64
	if err := s.db.WithContext(ctx).Model(&db.MissionDefinition{}).
		Where("code = ? AND id <> ?", input.Code, id).Count(&clash).Error; err != nil {
		return nil, fmt.Errorf("check mission code: %w", err)
	}
	if clash > 0 {
		return nil, fmt.Errorf("%w: code %q already exists", ErrInvalidMissionDefinition, input.Code)
	}

	applyMissionInput(existing, input)
	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update mission: %w", err)
	}
	return existing, nil
}

// SetActive 启用或停用任务定义，停用后不再被自动分配或领取
func (s *CatalogService) SetActive(ctx context.Context, id uint, active bool) (*db.MissionDefinition, error) {
	def, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(def).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("set mission active: %w", err)
	}
	def.IsActive = active
	return def, nil
}

func applyMissionInput(def *db.MissionDefinition, input MissionInput) {
	def.Code = input.Code
	def.Title = input.Title
	def.Description = input.Description
	def.Category = input.Category
	def.SubCategory = input.SubCategory
	def.TargetValue = input.TargetValue
	def.Unit = input.Unit
	def.Points = input.Points
	def.Difficulty = input.Difficulty
	def.Period = input.Period
	def.IsActive = input.IsActive
	def.TrackingMapping = datatypes.NewJSONType(input.TrackingMapping)
}

func normalizeMissionInput(input MissionInput) (MissionInput, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Title = sanitizeText(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.SubCategory = strings.ToLower(strings.TrimSpace(input.SubCategory))
	input.Unit = strings.TrimSpace(input.Unit)
	input.Period = strings.ToLower(strings.TrimSpace(input.Period))
	if input.Period == "" {
		input.Period = db.PeriodDaily
	}
	if input.Difficulty <= 0 {
		input.Difficulty = 1
	}

	mapping := input.TrackingMapping
	mapping.Table = strings.ToLower(strings.TrimSpace(mapping.Table))
	mapping.Column = strings.ToLower(strings.TrimSpace(mapping.Column))
	mapping.Aggregation = strings.ToUpper(strings.TrimSpace(mapping.Aggregation))
	mapping.DateColumn = strings.ToLower(strings.TrimSpace(mapping.DateColumn))
	input.TrackingMapping = mapping

	switch {
	case input.Code == "":
		return input, fmt.Errorf("%w: code is required", ErrInvalidMissionDefinition)
	case input.Title == "":
		return input, fmt.Errorf("%w: title is required", ErrInvalidMissionDefinition)
	case input.TargetValue <= 0:
		return input, fmt.Errorf("%w: target_value must be positive", ErrInvalidMissionDefinition)
	case input.Points < 0:
		return input, fmt.Errorf("%w: points must not be negative", ErrInvalidMissionDefinition)
	case input.Period != db.PeriodDaily && input.Period != db.PeriodWeekly:
		return input, fmt.Errorf("%w: unsupported period %q", ErrInvalidMissionDefinition, input.Period)
	}

	if _, ok := db.SourceForCategory(input.Category); !ok {
		return input, fmt.Errorf("%w: %w: %s", ErrInvalidMissionDefinition, ErrUnknownCategory, input.Category)
	}
	if err := ValidateMapping(mapping); err != nil {
		return input, fmt.Errorf("%w: %w", ErrInvalidMissionDefinition, err)
	}
	source, _ := db.LookupSource(mapping.Table)
	if source.Category != input.Category {
		return input, fmt.Errorf("%w: table %s does not belong to category %s", ErrInvalidMissionDefinition, mapping.Table, input.Category)
	}

	return input, nil
}

// RenderDescription 把任务描述的 Markdown 渲染为安全 HTML
func RenderDescription(markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := descriptionEngine.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	return descriptionPolicy.Sanitize(buf.String()), nil
}

// catalogFile 是 YAML 种子文件的结构
type catalogFile struct {
	Missions []catalogEntry `yaml:"missions"`
}

type catalogEntry struct {
	Code            string         `yaml:"code"`
	Title           string         `yaml:"title"`
	Description     string         `yaml:"description"`
	Category        string         `yaml:"category"`
	SubCategory     string         `yaml:"sub_category"`
	TargetValue     float64        `yaml:"target_value"`
	Unit            string         `yaml:"unit"`
	Points          int            `yaml:"points"`
	Difficulty      int            `yaml:"difficulty"`
	Period          string         `yaml:"period"`
	Active          *bool          `yaml:"active"`
	TrackingMapping catalogMapping `yaml:"tracking_mapping"`
}

// catalogMapping 兼容旧数据中以字符串保存的 filter 字段
type catalogMapping struct {
	db.TrackingMapping `yaml:",inline"`
	Filter             string `yaml:"filter"`
}

// CatalogLoadResult 统计种子导入结果
type CatalogLoadResult struct {
	Created int
	Updated int
}

// LoadCatalogFile 读取 YAML 文件并按 code 新增或更新任务定义。
// 任一条目校验失败时整体不写入。
func (s *CatalogService) LoadCatalogFile(ctx context.Context, path string) (CatalogLoadResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CatalogLoadResult{}, fmt.Errorf("read catalog file: %w", err)
	}
	return s.LoadCatalog(ctx, raw)
}

// LoadCatalog 与 LoadCatalogFile 相同，直接接收 YAML 内容
func (s *CatalogService) LoadCatalog(ctx context.Context, raw []byte) (CatalogLoadResult, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return CatalogLoadResult{}, fmt.Errorf("parse catalog file: %w", err)
	}

	inputs := make([]MissionInput, 0, len(file.Missions))
	seen := make(map[string]bool, len(file.Missions))
	for i, entry := range file.Missions {
		input, err := entry.toInput()
		if err != nil {
			return CatalogLoadResult{}, fmt.Errorf("catalog entry %d (%s): %w", i, entry.Code, err)
		}
		input, err = normalizeMissionInput(input)
		if err != nil {
			return CatalogLoadResult{}, fmt.Errorf("catalog entry %d (%s): %w", i, entry.Code, err)
		}
		if seen[input.Code] {
			return CatalogLoadResult{}, fmt.Errorf("catalog entry %d: duplicate code %q", i, input.Code)
		}
		seen[input.Code] = true
		inputs = append(inputs, input)
	}

	var result CatalogLoadResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, input := range inputs {
			var def db.MissionDefinition
			err := tx.Unscoped().Where("code = ?", input.Code).First(&def).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				def = db.MissionDefinition{}
				applyMissionInput(&def, input)
				if err := tx.Create(&def).Error; err != nil {
					return fmt.Errorf("create mission %s: %w", input.Code, err)
				}
				result.Created++
			case err != nil:
				return fmt.Errorf("find mission %s: %w", input.Code, err)
			default:
				applyMissionInput(&def, input)
				def.DeletedAt = gorm.DeletedAt{}
				if err := tx.Unscoped().Save(&def).Error; err != nil {
					return fmt.Errorf("update mission %s: %w", input.Code, err)
				}
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return CatalogLoadResult{}, err
	}
	return result, nil
}

func (e catalogEntry) toInput() (MissionInput, error) {
	mapping := e.TrackingMapping.TrackingMapping
	if legacy := strings.TrimSpace(e.TrackingMapping.Filter); legacy != "" {
		clauses, err := ParseLegacyFilter(legacy)
		if err != nil {
			return MissionInput{}, fmt.Errorf("%w: %w", ErrInvalidMissionDefinition, err)
		}
		mapping.Filters = append(mapping.Filters, clauses...)
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	return MissionInput{
		Code:            e.Code,
		Title:           e.Title,
		Description:     e.Description,
		Category:        e.Category,
		SubCategory:     e.SubCategory,
		TargetValue:     e.TargetValue,
		Unit:            e.Unit,
		Points:          e.Points,
		Difficulty:      e.Difficulty,
		Period:          e.Period,
		IsActive:        active,
		TrackingMapping: mapping,
	}, nil
}
