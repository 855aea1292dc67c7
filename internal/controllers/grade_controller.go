package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/middleware"
	"github.com/zaqqye/simlab_backend/internal/models"
)

// GradeController serves final grades and the class weighting.
type GradeController struct {
	Aggregator *grading.Aggregator
}

type weightsRequest struct {
	Weights map[string]float64 `json:"weights" binding:"required"`
}

// ClassGrades lists every enrolled student's final grade.
func (gc *GradeController) ClassGrades(c *gin.Context) {
	classID, ok := idParam(c, "id")
	if !ok {
		return
	}
	grades, err := gc.Aggregator.GetFinalGradesByClass(c.Request.Context(), classID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": grades})
}

// StudentGrade returns one student's final grade. Students may only read
// their own.
func (gc *GradeController) StudentGrade(c *gin.Context) {
	classID, ok := idParam(c, "id")
	if !ok {
		return
	}
	studentID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	if u, ok := middleware.CurrentUser(c); ok && u.Role == models.RoleStudent && u.ID != studentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	gc.respondStudent(c, classID, studentID)
}

// MyGrade is StudentGrade for the caller.
func (gc *GradeController) MyGrade(c *gin.Context) {
	classID, ok := idParam(c, "id")
	if !ok {
		return
	}
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	gc.respondStudent(c, classID, u.ID)
}

func (gc *GradeController) respondStudent(c *gin.Context, classID, studentID string) {
	g, err := gc.Aggregator.ComputeFinalGrade(c.Request.Context(), studentID, classID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// ConfigureWeights replaces the practice weights of a class.
func (gc *GradeController) ConfigureWeights(c *gin.Context) {
	classID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req weightsRequest
	if !bindJSON(c, &req) {
		return
	}
	practices, err := gc.Aggregator.ConfigureWeights(c.Request.Context(), classID, req.Weights)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(practices))
	for _, p := range practices {
		out = append(out, gin.H{"id": p.ID, "name": p.Name, "gradeable": p.Gradeable, "percentage": p.Percentage})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// MarkNotGradeable retires a practice from grading. Its pending simulations
// become not evaluable and the class weights need reconfiguring.
func (gc *GradeController) MarkNotGradeable(c *gin.Context) {
	practiceID, ok := idParam(c, "id")
	if !ok {
		return
	}
	moved, err := gc.Aggregator.MarkPracticeNotGradeable(c.Request.Context(), practiceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "practice is no longer gradeable", "simulations_not_evaluable": moved})
}
