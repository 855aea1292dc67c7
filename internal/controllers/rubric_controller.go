package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/models"
)

type RubricController struct {
	Engine *grading.RubricEngine
}

type templateRequest struct {
	Title     string            `json:"title" binding:"required"`
	Criteria  []models.Criteria `json:"criteria" binding:"required,min=1"`
	CourseIDs []string          `json:"course_ids" binding:"dive,uuid"`
}

type templateCriteriaRequest struct {
	Criteria []models.Criteria `json:"criteria" binding:"required,min=1"`
}

type cloneTemplateRequest struct {
	Title string `json:"title" binding:"required"`
}

type createRubricRequest struct {
	TemplateID string `json:"template_id" binding:"required,uuid"`
}

type scoreRequest struct {
	Score   *float64 `json:"score" binding:"required"`
	Comment string   `json:"comment"`
}

func templateJSON(t models.RubricTemplate) gin.H {
	return gin.H{
		"id":         t.ID,
		"title":      t.Title,
		"criteria":   []models.Criteria(t.Criteria),
		"course_ids": []string(t.CourseIDs),
		"archived":   t.Archived,
		"created_at": t.CreatedAt,
		"updated_at": t.UpdatedAt,
	}
}

func rubricJSON(r models.Rubric) gin.H {
	return gin.H{
		"id":            r.ID,
		"simulation_id": r.SimulationIDRef,
		"template_id":   r.TemplateIDRef,
		"evaluated":     []models.EvaluatedCriteria(r.Evaluated),
		"total":         r.Total.Data(),
		"pruned":        []models.EvaluatedCriteria(r.Pruned),
		"finalized_at":  r.FinalizedAt,
	}
}

func (rc *RubricController) ListTemplates(c *gin.Context) {
	include, _ := parseBoolFilter(c.Query("include_archived"))
	list, err := rc.Engine.ListTemplates(c.Request.Context(), include)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, t := range list {
		out = append(out, templateJSON(t))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (rc *RubricController) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := rc.Engine.CreateTemplate(c.Request.Context(), req.Title, req.Criteria, req.CourseIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, templateJSON(t))
}

func (rc *RubricController) GetTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := rc.Engine.GetTemplate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templateJSON(t))
}

// UpdateTemplateCriteria answers with the template and the per-rubric
// reconciliation diffs.
func (rc *RubricController) UpdateTemplateCriteria(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req templateCriteriaRequest
	if !bindJSON(c, &req) {
		return
	}
	t, diffs, err := rc.Engine.UpdateTemplateCriteria(c.Request.Context(), id, req.Criteria)
	if err != nil {
		respondError(c, err)
		return
	}
	reconciled := make(gin.H, len(diffs))
	for rubricID, d := range diffs {
		reconciled[rubricID] = gin.H{"pruned": d.Pruned, "added": d.Added}
	}
	out := templateJSON(t)
	out["reconciled"] = reconciled
	c.JSON(http.StatusOK, out)
}

func (rc *RubricController) CloneTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req cloneTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := rc.Engine.CloneTemplate(c.Request.Context(), id, strings.TrimSpace(req.Title))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, templateJSON(t))
}

func (rc *RubricController) ArchiveTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := rc.Engine.ArchiveTemplate(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "archived"})
}

// CreateRubric instantiates a template for the simulation in the path.
func (rc *RubricController) CreateRubric(c *gin.Context) {
	simID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req createRubricRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := rc.Engine.CreateRubric(c.Request.Context(), req.TemplateID, simID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rubricJSON(r))
}

func (rc *RubricController) RubricForSimulation(c *gin.Context) {
	simID, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := rc.Engine.RubricForSimulation(c.Request.Context(), simID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rubricJSON(r))
}

func (rc *RubricController) GetRubric(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := rc.Engine.GetRubric(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rubricJSON(r))
}

func (rc *RubricController) ScoreCriteria(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	criteriaID := strings.TrimSpace(c.Param("criteria_id"))
	var req scoreRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := rc.Engine.ScoreCriteria(c.Request.Context(), id, criteriaID, *req.Score, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rubricJSON(r))
}

// FinalizeRubric registers the simulation grade. Repeating it returns the
// stored grade.
func (rc *RubricController) FinalizeRubric(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	grade, err := rc.Engine.FinalizeRubric(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rubric_id": id, "grade": grade})
}

func (rc *RubricController) AbandonRubric(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := rc.Engine.AbandonRubric(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "simulation marked not evaluable"})
}
