package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/ninenotes/internal/core/chat"
)

type chatRequest struct {
	Messages []chat.Turn `json:"messages"`
}

// handleChat は会話履歴を受け取り、応答をトークン単位でストリーミングする。
// 生成開始前の失敗はJSONエラーで返し、開始後の失敗はストリームを打ち切る
func (s *Server) handleChat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	stream, err := s.container.ChatService.Stream(c.Request.Context(), userID, req.Messages)
	if err != nil {
		writeError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for stream.Next() {
		if _, err := c.Writer.WriteString(stream.Current()); err != nil {
			// クライアント切断。生成を放棄する
			s.logger.Warn("chat stream write failed", "error", err)
			return
		}
		c.Writer.Flush()
	}

	if err := stream.Err(); err != nil {
		// ヘッダー送信済みのためステータスは変えられない。終端チャンクを
		// 送らせずに接続を打ち切り、正常完了と区別できる形で失敗させる
		s.logger.Error("chat stream terminated", "userID", userID.String(), "error", err)
		panic(http.ErrAbortHandler)
	}
}
