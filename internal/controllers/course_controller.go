package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/models"
)

type CourseController struct {
	DB *gorm.DB
}

type createCourseRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type updateCourseRequest struct {
	Code *string `json:"code"`
	Name *string `json:"name"`
}

var courseSorts = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"code":       "code",
	"name":       "name",
}

func (cc *CourseController) ListCourses(c *gin.Context) {
	lq := parseListQuery(c, 20, courseSorts, "created_at")
	qText := strings.TrimSpace(c.Query("q"))
	filters := func(q *gorm.DB) *gorm.DB {
		if qText != "" {
			like := "%" + qText + "%"
			q = q.Where("code ILIKE ? OR name ILIKE ?", like, like)
		}
		return q
	}
	db := cc.DB.WithContext(c.Request.Context())
	var total int64
	if err := db.Model(&models.Course{}).Scopes(filters).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var courses []models.Course
	if err := lq.Apply(db.Model(&models.Course{}).Scopes(filters)).Find(&courses).Error; err != nil {
		respondError(c, err)
		return
	}
	meta := lq.Meta(total)
	if qText != "" {
		meta["q"] = qText
	}
	c.JSON(http.StatusOK, gin.H{"data": courses, "meta": meta})
}

func (cc *CourseController) CreateCourse(c *gin.Context) {
	var req createCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course := models.Course{Code: strings.ToUpper(strings.TrimSpace(req.Code)), Name: strings.TrimSpace(req.Name)}
	if err := cc.DB.WithContext(c.Request.Context()).Create(&course).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": course.ID})
}

func (cc *CourseController) GetCourse(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var course models.Course
	if err := cc.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&course).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}
	c.JSON(http.StatusOK, course)
}

func (cc *CourseController) UpdateCourse(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := cc.DB.WithContext(c.Request.Context())
	var course models.Course
	if err := db.Where("id = ?", id).First(&course).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}
	var req updateCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Code != nil {
		course.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
	}
	if req.Name != nil {
		course.Name = strings.TrimSpace(*req.Name)
	}
	if err := db.Save(&course).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (cc *CourseController) DeleteCourse(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := cc.DB.WithContext(c.Request.Context())
	var classes int64
	if err := db.Model(&models.Class{}).Where("course_id_ref = ?", id).Count(&classes).Error; err != nil {
		respondError(c, err)
		return
	}
	if classes > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "course still has classes"})
		return
	}
	if err := db.Where("id = ?", id).Delete(&models.Course{}).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
