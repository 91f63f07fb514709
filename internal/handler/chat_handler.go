package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-admin-api/internal/service"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
	"github.com/campushq/campus-admin-api/pkg/response"
)

// ChatHandler wires HTTP endpoints to the chat service.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler creates a new handler.
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// List godoc
// @Summary List chats visible to the current user
// @Tags Chats
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /chats [get]
func (h *ChatHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	chats, err := h.service.ListVisible(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chats, nil)
}

// Create godoc
// @Summary Create a chat with its membership snapshot
// @Tags Chats
// @Accept json
// @Produce json
// @Param payload body service.CreateChatRequest true "Chat payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats [post]
func (h *ChatHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid chat payload"))
		return
	}
	req.ActorID = claims.UserID

	chat, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, chat)
}

// Get godoc
// @Summary Get a chat with recent messages and files
// @Tags Chats
// @Produce json
// @Param id path string true "Chat ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id} [get]
func (h *ChatHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	chat, messages, files, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"chat":     chat,
		"messages": messages,
		"files":    files,
	}, nil)
}

// Delete godoc
// @Summary Delete a chat
// @Tags Chats
// @Param id path string true "Chat ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id} [delete]
func (h *ChatHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListMembers godoc
// @Summary List chat members
// @Tags Chats
// @Produce json
// @Param id path string true "Chat ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/members [get]
func (h *ChatHandler) ListMembers(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	members, err := h.service.ListMembers(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// AddMember godoc
// @Summary Add a member to a chat
// @Tags Chats
// @Accept json
// @Param id path string true "Chat ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/members [post]
func (h *ChatHandler) AddMember(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "user_id required"))
		return
	}

	if err := h.service.AddMember(c.Request.Context(), claims.UserID, c.Param("id"), payload.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveMember godoc
// @Summary Remove a member from a chat
// @Tags Chats
// @Param id path string true "Chat ID"
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/members/{userId} [delete]
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.RemoveMember(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PostMessage godoc
// @Summary Post a message in a chat
// @Tags Chats
// @Accept json
// @Produce json
// @Param id path string true "Chat ID"
// @Param payload body service.PostMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/messages [post]
func (h *ChatHandler) PostMessage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	req.ActorID = claims.UserID
	req.ChatID = c.Param("id")

	message, err := h.service.PostMessage(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// DeleteMessage godoc
// @Summary Delete a chat message
// @Tags Chats
// @Param id path string true "Chat ID"
// @Param messageId path string true "Message ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/messages/{messageId} [delete]
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteMessage(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("messageId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadFile godoc
// @Summary Attach a file to a chat
// @Tags Chats
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Chat ID"
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/files [post]
func (h *ChatHandler) UploadFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}
	defer src.Close()

	file, err := h.service.UploadFile(c.Request.Context(), claims.UserID, c.Param("id"), fileHeader.Filename, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// DeleteFile godoc
// @Summary Delete a chat file
// @Tags Chats
// @Param id path string true "Chat ID"
// @Param fileId path string true "File ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /chats/{id}/files/{fileId} [delete]
func (h *ChatHandler) DeleteFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteFile(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("fileId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
