package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/models"
)

// PracticeController edits practice metadata. Weights and gradeability go
// through the grade endpoints so the class weighting stays consistent.
type PracticeController struct {
	DB *gorm.DB
}

type createPracticeRequest struct {
	ClassID                   string `json:"class_id" binding:"required,uuid"`
	Name                      string `json:"name" binding:"required"`
	Description               string `json:"description"`
	Type                      string `json:"type"`
	Gradeable                 *bool  `json:"gradeable"`
	SimulationDurationMinutes int    `json:"simulation_duration_minutes" binding:"gte=0"`
	NumberOfGroups            int    `json:"number_of_groups" binding:"gte=0"`
	MaxStudentsGroup          int    `json:"max_students_group" binding:"gte=0"`
}

type updatePracticeRequest struct {
	Name                      *string `json:"name"`
	Description               *string `json:"description"`
	Type                      *string `json:"type"`
	SimulationDurationMinutes *int    `json:"simulation_duration_minutes" binding:"omitempty,gte=0"`
	NumberOfGroups            *int    `json:"number_of_groups" binding:"omitempty,gte=0"`
	MaxStudentsGroup          *int    `json:"max_students_group" binding:"omitempty,gte=0"`
}

// ListPractices lists the practices of ?class_id= ordered by creation.
func (pc *PracticeController) ListPractices(c *gin.Context) {
	classID := strings.TrimSpace(c.Query("class_id"))
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_id is required"})
		return
	}
	var practices []models.Practice
	if err := pc.DB.WithContext(c.Request.Context()).
		Where("class_id_ref = ?", classID).
		Order("created_at ASC").
		Find(&practices).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": practices})
}

// CreatePractice adds a practice with zero weight. Gradeable defaults to
// true.
func (pc *PracticeController) CreatePractice(c *gin.Context) {
	var req createPracticeRequest
	if !bindJSON(c, &req) {
		return
	}
	db := pc.DB.WithContext(c.Request.Context())
	if err := db.Where("id = ?", req.ClassID).First(&models.Class{}).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	gradeable := true
	if req.Gradeable != nil {
		gradeable = *req.Gradeable
	}
	p := models.Practice{
		ClassIDRef:                req.ClassID,
		Name:                      strings.TrimSpace(req.Name),
		Description:               req.Description,
		Type:                      req.Type,
		Gradeable:                 gradeable,
		SimulationDurationMinutes: req.SimulationDurationMinutes,
		NumberOfGroups:            req.NumberOfGroups,
		MaxStudentsGroup:          req.MaxStudentsGroup,
	}
	if err := db.Create(&p).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": p.ID})
}

func (pc *PracticeController) GetPractice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p models.Practice
	if err := pc.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "practice not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *PracticeController) UpdatePractice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := pc.DB.WithContext(c.Request.Context())
	var p models.Practice
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "practice not found"})
		return
	}
	var req updatePracticeRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Type != nil {
		p.Type = *req.Type
	}
	if req.SimulationDurationMinutes != nil {
		p.SimulationDurationMinutes = *req.SimulationDurationMinutes
	}
	if req.NumberOfGroups != nil {
		p.NumberOfGroups = *req.NumberOfGroups
	}
	if req.MaxStudentsGroup != nil {
		p.MaxStudentsGroup = *req.MaxStudentsGroup
	}
	if err := db.Save(&p).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// DeletePractice refuses while the practice has simulations or carries
// weight in its class.
func (pc *PracticeController) DeletePractice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := pc.DB.WithContext(c.Request.Context())
	var p models.Practice
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "practice not found"})
		return
	}
	if p.Percentage != 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "reassign the practice weight before deleting it"})
		return
	}
	var sims int64
	if err := db.Model(&models.Simulation{}).Where("practice_id_ref = ?", id).Count(&sims).Error; err != nil {
		respondError(c, err)
		return
	}
	if sims > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "practice still has simulations"})
		return
	}
	if err := db.Delete(&p).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
