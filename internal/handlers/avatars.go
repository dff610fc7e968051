package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/authgate/backend/internal/middleware"
	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/internal/storage"
	"github.com/authgate/backend/pkg/logger"
	"github.com/authgate/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxAvatarSize = 5 * 1024 * 1024

type AvatarsHandler struct {
	DB    *gorm.DB
	Store *storage.AvatarStore
}

func NewAvatarsHandler(db *gorm.DB, store *storage.AvatarStore) *AvatarsHandler {
	return &AvatarsHandler{DB: db, Store: store}
}

// Upload stores a profile image and points the user row at its public URL.
func (h *AvatarsHandler) Upload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxAvatarSize {
		return utils.Error(c, fiber.StatusBadRequest, "file exceeds 5MB limit")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return utils.Error(c, fiber.StatusBadRequest, "only image uploads are allowed")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed reading upload")
	}
	defer file.Close()

	objectName := fmt.Sprintf("%s/%s%s", user.ID, uuid.New(), filepath.Ext(fileHeader.Filename))

	publicURL, err := h.Store.Upload(c.Context(), objectName, file, fileHeader.Size, contentType)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing avatar")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("image", publicURL).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user image")
	}

	logger.InfoWithUser(user.ID.String(), "avatar_updated", map[string]interface{}{
		"object_name": objectName,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": publicURL})
}
