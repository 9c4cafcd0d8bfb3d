package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wellnesslog/internal/db"
	"gorm.io/gorm"
)

const defaultResolverTimeout = 3 * time.Second

// Aggregate 是一次聚合查询的结果。Rows 为 0 时 Value 为 0，表示当日无记录。
type Aggregate struct {
	Value float64
	Rows  int64
}

// AggregationResolver 根据追踪映射从追踪表重新计算聚合值，只读。
type AggregationResolver struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewAggregationResolver 构造解析器，timeout<=0 时使用默认 3 秒
func NewAggregationResolver(gdb *gorm.DB, timeout time.Duration) *AggregationResolver {
	if timeout <= 0 {
		timeout = defaultResolverTimeout
	}
	return &AggregationResolver{db: gdb, timeout: timeout}
}

// ResolveDay 计算用户某一天的聚合值
func (r *AggregationResolver) ResolveDay(ctx context.Context, mapping db.TrackingMapping, userID, day string, loc *time.Location) (Aggregate, error) {
	window, err := SingleDay(day, loc)
	if err != nil {
		return Aggregate{}, err
	}
	return r.Resolve(ctx, mapping, userID, window)
}

// Resolve 计算用户在 window 区间内的聚合值。
// 映射引用未知表/列时返回 *ConfigurationError；超时返回 ErrTransientStore。
func (r *AggregationResolver) Resolve(ctx context.Context, mapping db.TrackingMapping, userID string, window DayWindow) (Aggregate, error) {
	plan, err := planMapping(mapping)
	if err != nil {
		return Aggregate{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.WithContext(ctx).Table(plan.source.Table).Where("user_id = ?", userID)

	switch plan.dateKind {
	case db.DateColumnTimestamp:
		start, end, err := window.Bounds()
		if err != nil {
			return Aggregate{}, err
		}
		query = query.Where(fmt.Sprintf("%s >= ? AND %s < ?", quoteIdent(plan.dateColumn), quoteIdent(plan.dateColumn)), start, end)
	default:
		query = query.Where(fmt.Sprintf("%s >= ? AND %s < ?", quoteIdent(plan.dateColumn), quoteIdent(plan.dateColumn)), window.Start, window.End)
	}

	query = applyFilters(query, plan.filters)

	var row struct {
		Value    sql.NullFloat64
		RowCount int64
	}
	if err := query.Select(plan.selectExpr + " AS value, COUNT(*) AS row_count").Scan(&row).Error; err != nil {
		return Aggregate{}, classifyStoreError(fmt.Errorf("resolve %s.%s: %w", plan.source.Table, plan.column, err))
	}

	result := Aggregate{Rows: row.RowCount}
	if row.Value.Valid {
		result.Value = row.Value.Float64
	}
	return result, nil
}

type mappingPlan struct {
	source     db.TrackingSource
	column     string
	dateColumn string
	dateKind   db.DateColumnKind
	selectExpr string
	filters    []db.FilterClause
}

// ValidateMapping 校验映射是否引用已登记的追踪表与列
func ValidateMapping(mapping db.TrackingMapping) error {
	_, err := planMapping(mapping)
	return err
}

func planMapping(mapping db.TrackingMapping) (mappingPlan, error) {
	source, ok := db.LookupSource(mapping.Table)
	if !ok {
		return mappingPlan{}, configErrorf("unknown table %q", mapping.Table)
	}

	plan := mappingPlan{source: source}

	plan.dateColumn = strings.TrimSpace(strings.ToLower(mapping.DateColumn))
	if plan.dateColumn == "" {
		plan.dateColumn = "occurred_on"
	}
	kind, ok := source.DateKind(plan.dateColumn)
	if !ok {
		return mappingPlan{}, configErrorf("unknown date column %q on %s", mapping.DateColumn, source.Table)
	}
	plan.dateKind = kind

	plan.column = strings.TrimSpace(strings.ToLower(mapping.Column))
	aggregation := strings.TrimSpace(strings.ToUpper(mapping.Aggregation))

	switch aggregation {
	case db.AggregationSum, db.AggregationAvg:
		if !source.IsNumeric(plan.column) {
			return mappingPlan{}, configErrorf("%s requires a numeric column, got %q on %s", aggregation, mapping.Column, source.Table)
		}
		if aggregation == db.AggregationSum {
			plan.selectExpr = fmt.Sprintf("COALESCE(SUM(%s), 0)", quoteIdent(plan.column))
		} else {
			plan.selectExpr = fmt.Sprintf("AVG(%s)", quoteIdent(plan.column))
		}
	case db.AggregationCount:
		if plan.column == "" || plan.column == "*" {
			plan.column = "*"
			plan.selectExpr = "COUNT(*)"
			break
		}
		if !source.HasColumn(plan.column) {
			return mappingPlan{}, configErrorf("unknown column %q on %s", mapping.Column, source.Table)
		}
		plan.selectExpr = fmt.Sprintf("COUNT(%s)", quoteIdent(plan.column))
	case db.AggregationCountDistinct:
		if !source.HasColumn(plan.column) {
			return mappingPlan{}, configErrorf("unknown column %q on %s", mapping.Column, source.Table)
		}
		plan.selectExpr = fmt.Sprintf("COUNT(DISTINCT %s)", quoteIdent(plan.column))
	default:
		return mappingPlan{}, configErrorf("unsupported aggregation %q", mapping.Aggregation)
	}

	filters, err := normalizeFilters(source, mapping.Filters)
	if err != nil {
		return mappingPlan{}, configErrorf("%s", err.Error())
	}
	plan.filters = filters

	return plan, nil
}
