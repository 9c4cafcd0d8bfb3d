package handler

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 校验管理员账号密码并写入会话
func (a *API) Login(c *gin.Context) {
	var payload loginRequest
	if strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		if !bindJSON(c, &payload, "请求参数不合法") {
			return
		}
	} else {
		payload.Username = c.PostForm("username")
		payload.Password = c.PostForm("password")
	}

	user, err := db.VerifyAdmin(a.db, payload.Username, payload.Password)
	if err != nil {
		respondErrorCode(c, http.StatusUnauthorized, "invalid_credentials", "用户名或密码错误")
		return
	}

	// 设置会话
	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		respondErrorCode(c, http.StatusInternalServerError, "session_error", "会话保存失败")
		return
	}

	a.logger.WithField("username", user.Username).Info("admin logged in")
	c.JSON(http.StatusOK, gin.H{"username": user.Username})
}

// Logout 处理用户登出
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		respondErrorCode(c, http.StatusInternalServerError, "session_error", "会话保存失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

// CurrentAdmin 返回当前登录的管理员
func (a *API) CurrentAdmin(c *gin.Context) {
	session := sessions.Default(c)
	c.JSON(http.StatusOK, gin.H{"username": session.Get("username")})
}

// AuthRequired 是一个简单的认证中间件，未登录时返回 401
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get("user_id")
		if userID == nil {
			respondErrorCode(c, http.StatusUnauthorized, "unauthorized", "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}
