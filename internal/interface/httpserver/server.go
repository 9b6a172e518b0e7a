// Package httpserver はREST APIのルーティングとハンドラを提供する。
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/ninenotes/internal/platform/container"
)

// Server はHTTP APIサーバー
type Server struct {
	engine    *gin.Engine
	container *container.ServiceContainer
	logger    *slog.Logger
}

// ServerOption は Server 構築時のオプション
type ServerOption func(*Server)

// WithServerLogger はロガーを差し替える
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer は新しい Server を作成してルーティングを登録する
func NewServer(cont *container.ServiceContainer, opts ...ServerOption) *Server {
	s := &Server{
		container: cont,
		logger:    cont.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	engine := gin.New()
	// http.ErrAbortHandler の panic は net/http 側で接続を打ち切らせる
	// 必要があるため、ここでは回復せずに通す
	engine.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		if err == http.ErrAbortHandler {
			panic(err)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	engine.Use(requestLogger(s.logger))
	s.engine = engine

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.handleHealth)

	auth := api.Group("/auth")
	{
		auth.POST("/sign-up", s.handleSignUp)
		auth.POST("/sign-in", s.handleSignIn)
	}

	// 以降のエンドポイントはセッショントークン必須
	authed := api.Group("")
	authed.Use(authRequired(s.container.TokenIssuer))
	{
		authed.GET("/notes", s.handleListNotes)
		authed.POST("/notes", s.handleCreateNote)
		authed.PUT("/notes", s.handleUpdateNote)
		authed.DELETE("/notes", s.handleDeleteNote)

		authed.POST("/chat", s.handleChat)

		authed.GET("/profile", s.handleGetProfile)
		authed.POST("/profile", s.handleUpdateProfile)
		authed.POST("/profile/avatar", s.handleUploadAvatar)

		authed.GET("/location", s.handleLocation)
	}
}

// Handler は http.Handler としてルーターを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
