package conversations

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/chirino/conversation-service/internal/service"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the conversation routes. Called after store
// initialization so the service is available.
func MountRoutes(r *gin.Engine, svc *service.ConversationService, auth gin.HandlerFunc) {
	g := r.Group("/conversation", auth)

	g.POST("/", func(c *gin.Context) {
		createDirect(c, svc)
	})
	g.GET("/", func(c *gin.Context) {
		listConversations(c, svc)
	})
	g.GET("/:id", func(c *gin.Context) {
		getConversation(c, svc)
	})
	g.POST("/group", func(c *gin.Context) {
		createGroup(c, svc)
	})
	g.PUT("/rename", func(c *gin.Context) {
		renameGroup(c, svc)
	})
	g.PUT("/groupadd", func(c *gin.Context) {
		addMember(c, svc)
	})
	g.PUT("/groupremove", func(c *gin.Context) {
		removeMember(c, svc)
	})
	g.PUT("/read", func(c *gin.Context) {
		markRead(c, svc)
	})
}

func createDirect(c *gin.Context, svc *service.ConversationService) {
	var req struct {
		Members []string `json:"members"`
	}
	if !bind(c, &req) {
		return
	}
	view, _, err := svc.CreateDirect(c.Request.Context(), security.GetUserID(c), req.Members)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func listConversations(c *gin.Context, svc *service.ConversationService) {
	views, err := svc.ListForUser(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func getConversation(c *gin.Context, svc *service.ConversationService) {
	view, err := svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func createGroup(c *gin.Context, svc *service.ConversationService) {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if !bind(c, &req) {
		return
	}
	view, err := svc.CreateGroup(c.Request.Context(), security.GetUserID(c), req.Name, req.Members)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func renameGroup(c *gin.Context, svc *service.ConversationService) {
	var req struct {
		ChatID   string `json:"chatId"`
		Name     string `json:"name"`
		ChatName string `json:"chatName"`
	}
	if !bind(c, &req) {
		return
	}
	name := req.Name
	if name == "" {
		name = req.ChatName
	}
	view, err := svc.RenameGroup(c.Request.Context(), req.ChatID, name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type memberRequest struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

func addMember(c *gin.Context, svc *service.ConversationService) {
	var req memberRequest
	if !bind(c, &req) {
		return
	}
	view, err := svc.AddMember(c.Request.Context(), req.ChatID, req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func removeMember(c *gin.Context, svc *service.ConversationService) {
	var req memberRequest
	if !bind(c, &req) {
		return
	}
	view, err := svc.RemoveMember(c.Request.Context(), req.ChatID, req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func markRead(c *gin.Context, svc *service.ConversationService) {
	var req struct {
		ChatID string `json:"chatId"`
	}
	if !bind(c, &req) {
		return
	}
	view, err := svc.MarkRead(c.Request.Context(), security.GetUserID(c), req.ChatID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// --- Helpers ---

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": validation.Message, "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		log.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "error": "internal server error"})
	}
}
