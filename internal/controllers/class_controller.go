package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/models"
)

// ClassController manages class offerings and their student enrollments.
type ClassController struct {
	DB *gorm.DB
}

type createClassRequest struct {
	CourseID string `json:"course_id" binding:"required,uuid"`
	Name     string `json:"name" binding:"required"`
}

type updateClassRequest struct {
	Name *string `json:"name"`
}

type enrollRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1"`
}

var classSorts = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"name":       "name",
}

func (cc *ClassController) ListClasses(c *gin.Context) {
	lq := parseListQuery(c, 20, classSorts, "created_at")
	qText := strings.TrimSpace(c.Query("q"))
	courseID := strings.TrimSpace(c.Query("course_id"))
	filters := func(q *gorm.DB) *gorm.DB {
		if qText != "" {
			q = q.Where("name ILIKE ?", "%"+qText+"%")
		}
		if courseID != "" {
			q = q.Where("course_id_ref = ?", courseID)
		}
		return q
	}
	db := cc.DB.WithContext(c.Request.Context())
	var total int64
	if err := db.Model(&models.Class{}).Scopes(filters).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var classes []models.Class
	if err := lq.Apply(db.Model(&models.Class{}).Scopes(filters)).Find(&classes).Error; err != nil {
		respondError(c, err)
		return
	}
	meta := lq.Meta(total)
	if courseID != "" {
		meta["course_id"] = courseID
	}
	c.JSON(http.StatusOK, gin.H{"data": classes, "meta": meta})
}

func (cc *ClassController) CreateClass(c *gin.Context) {
	var req createClassRequest
	if !bindJSON(c, &req) {
		return
	}
	db := cc.DB.WithContext(c.Request.Context())
	if err := db.Where("id = ?", req.CourseID).First(&models.Course{}).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}
	class := models.Class{CourseIDRef: req.CourseID, Name: strings.TrimSpace(req.Name)}
	if err := db.Create(&class).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": class.ID})
}

func (cc *ClassController) GetClass(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var class models.Class
	if err := cc.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&class).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	c.JSON(http.StatusOK, class)
}

func (cc *ClassController) UpdateClass(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := cc.DB.WithContext(c.Request.Context())
	var class models.Class
	if err := db.Where("id = ?", id).First(&class).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	var req updateClassRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Name != nil {
		class.Name = strings.TrimSpace(*req.Name)
	}
	if err := db.Save(&class).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// DeleteClass refuses while practices still reference the class.
func (cc *ClassController) DeleteClass(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := cc.DB.WithContext(c.Request.Context())
	var practices int64
	if err := db.Model(&models.Practice{}).Where("class_id_ref = ?", id).Count(&practices).Error; err != nil {
		respondError(c, err)
		return
	}
	if practices > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "class still has practices"})
		return
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("class_id_ref = ?", id).Delete(&models.ClassEnrollment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Class{}).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// EnrollStudents adds student users to the class. Already enrolled users are
// left as they are.
func (cc *ClassController) EnrollStudents(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req enrollRequest
	if !bindJSON(c, &req) {
		return
	}
	ids, err := normalizeIDs(req.UserIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	db := cc.DB.WithContext(c.Request.Context())
	if err := db.Where("id = ?", id).First(&models.Class{}).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	var students []models.User
	if err := db.Where("id IN ? AND role = ?", ids, models.RoleStudent).Find(&students).Error; err != nil {
		respondError(c, err)
		return
	}
	if len(students) != len(ids) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "every user must be an existing student"})
		return
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, s := range students {
			rec := models.ClassEnrollment{ClassIDRef: id, UserIDRef: s.ID}
			if err := tx.Where("class_id_ref = ? AND user_id_ref = ?", id, s.ID).FirstOrCreate(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "enrolled", "count": len(students)})
}

func (cc *ClassController) UnenrollStudent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	if err := cc.DB.WithContext(c.Request.Context()).
		Where("class_id_ref = ? AND user_id_ref = ?", id, userID).
		Delete(&models.ClassEnrollment{}).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unenrolled"})
}

func (cc *ClassController) ListStudents(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var users []models.User
	if err := cc.DB.WithContext(c.Request.Context()).
		Joins("JOIN class_enrollments ce ON ce.user_id_ref = users.id").
		Where("ce.class_id_ref = ?", id).
		Order("users.full_name ASC").
		Find(&users).Error; err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, userJSON(u))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
