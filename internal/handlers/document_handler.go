package handlers

import (
	"errors"
	"net/http"
	"time"

	"collab-editor-api/internal/database"
	"collab-editor-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateDocumentRequest represents the request payload for creating a document
type CreateDocumentRequest struct {
	Name     string                  `json:"name" binding:"required"`
	Content  string                  `json:"content"`
	Language models.DocumentLanguage `json:"language"`
}

// RenameDocumentRequest represents the request payload for renaming a document
type RenameDocumentRequest struct {
	Name string `json:"name" binding:"required"`
}

// SaveContentRequest represents the request payload for a content save.
// The access key authorizes non-owner (including anonymous) participants.
type SaveContentRequest struct {
	Content   string `json:"content"`
	AccessKey string `json:"accessKey"`
}

// documentAccess loads a document and reports whether the caller may use it.
// Access rule: owner, or a matching access key.
func documentAccess(c *gin.Context, accessKey string) (*models.Document, bool, error) {
	var doc models.Document
	err := database.GetDB().Where("id = ?", c.Param("id")).First(&doc).Error
	if err != nil {
		return nil, false, err
	}

	userID := c.GetString("user_id")
	isOwner := userID != "" && userID == doc.OwnerID
	if !isOwner && accessKey != doc.AccessKey {
		return &doc, false, nil
	}
	return &doc, true, nil
}

// GetDocuments handles GET /api/documents
// Returns the authenticated user's documents, most recently updated first.
func GetDocuments(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in token"})
		return
	}

	var docs []models.Document
	if err := database.GetDB().
		Where("owner_id = ?", userID).
		Order("updated_at DESC").
		Find(&docs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch documents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"count":     len(docs),
	})
}

// CreateDocument handles POST /api/documents
func CreateDocument(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in token"})
		return
	}

	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document name is required"})
		return
	}

	language := req.Language
	if language == "" {
		language = models.LanguageJavaScript
	}

	doc := models.Document{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Content:   req.Content,
		OwnerID:   userID,
		AccessKey: uuid.NewString(),
		Language:  language,
	}
	if err := database.GetDB().Create(&doc).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// GetDocumentByID handles GET /api/documents/:id
// Accessible to the owner or anyone presenting the document's access key.
func GetDocumentByID(c *gin.Context) {
	doc, allowed, err := documentAccess(c, c.Query("accessKey"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch document"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document": doc,
		"isOwner":  c.GetString("user_id") == doc.OwnerID,
	})
}

// RenameDocument handles PUT /api/documents/:id (owner only)
func RenameDocument(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in token"})
		return
	}

	var req RenameDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Document name is required"})
		return
	}

	result := database.GetDB().Model(&models.Document{}).
		Where("id = ? AND owner_id = ?", c.Param("id"), userID).
		Update("name", req.Name)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update document"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found or access denied"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteDocument handles DELETE /api/documents/:id (owner only)
func DeleteDocument(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in token"})
		return
	}

	result := database.GetDB().
		Where("id = ? AND owner_id = ?", c.Param("id"), userID).
		Delete(&models.Document{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found or access denied"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SaveDocumentContent handles PUT /api/documents/:id/content
// This is the debounced persistence target of the edit pipeline; it is
// independent of the live broadcast path, so a failure here never affects
// already-delivered changes.
func SaveDocumentContent(c *gin.Context) {
	var req SaveContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	doc, allowed, err := documentAccess(c, req.AccessKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch document"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	if err := database.GetDB().Model(doc).Update("content", req.Content).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"contentLength": len(req.Content),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
