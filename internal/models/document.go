package models

import (
	"gorm.io/gorm"
)

// DocumentLanguage represents the syntax-highlighting language of a document
type DocumentLanguage string

const (
	LanguageJavaScript DocumentLanguage = "javascript"
	LanguageTypeScript DocumentLanguage = "typescript"
	LanguageGo         DocumentLanguage = "go"
	LanguagePython     DocumentLanguage = "python"
	LanguageMarkdown   DocumentLanguage = "markdown"
	LanguagePlainText  DocumentLanguage = "plaintext"
)

// Document represents a collaboratively edited document in the system
type Document struct {
	ID        string           `json:"id" gorm:"primaryKey"`
	Name      string           `json:"name" gorm:"not null"`
	Content   string           `json:"content"`
	OwnerID   string           `json:"ownerId" gorm:"column:owner_id;index"`
	AccessKey string           `json:"accessKey" gorm:"column:access_key;not null"`
	Language  DocumentLanguage `json:"language" gorm:"default:'javascript'"`
	gorm.Model
}

// TableName specifies the table name for Document Model
func (Document) TableName() string {
	return "documents"
}
