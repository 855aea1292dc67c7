package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/scheduling"
)

// SimulationController exposes the scheduler. Every write goes through it so
// bookings never overlap.
type SimulationController struct {
	Scheduler *scheduling.Scheduler
}

type createSimulationRequest struct {
	PracticeID  string    `json:"practice_id" binding:"required,uuid"`
	RoomIDs     []string  `json:"room_ids" binding:"required,min=1,dive,uuid"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
	GroupNumber int       `json:"group_number"`
}

type updateSimulationRequest struct {
	RoomIDs  []string  `json:"room_ids" binding:"required,min=1,dive,uuid"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
}

type assignUsersRequest struct {
	UserIDs []string `json:"user_ids" binding:"dive,uuid"`
}

func simulationJSON(s models.Simulation) gin.H {
	return gin.H{
		"id":              s.ID,
		"practice_id":     s.PracticeIDRef,
		"group_number":    s.GroupNumber,
		"starts_at":       s.StartsAt,
		"ends_at":         s.EndsAt,
		"grade":           s.Grade,
		"grade_status":    s.GradeStatus,
		"grade_date_time": s.GradeDateTime,
	}
}

func (sc *SimulationController) CreateSimulation(c *gin.Context) {
	var req createSimulationRequest
	if !bindJSON(c, &req) {
		return
	}
	sim, err := sc.Scheduler.CreateSimulation(c.Request.Context(), scheduling.CreateRequest{
		PracticeID:  req.PracticeID,
		RoomIDs:     req.RoomIDs,
		Window:      scheduling.Window{Start: req.StartsAt, End: req.EndsAt},
		GroupNumber: req.GroupNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, simulationJSON(sim))
}

// GetSimulation returns the simulation with its rooms and participants.
func (sc *SimulationController) GetSimulation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sim, err := sc.Scheduler.GetSimulation(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	rooms, err := sc.Scheduler.LoadRooms(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	users, err := sc.Scheduler.LoadUsers(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	out := simulationJSON(sim)
	roomsOut := make([]gin.H, 0, len(rooms))
	for _, r := range rooms {
		roomsOut = append(roomsOut, roomJSON(r))
	}
	usersOut := make([]gin.H, 0, len(users))
	for _, u := range users {
		usersOut = append(usersOut, gin.H{"id": u.ID, "full_name": u.FullName, "role": u.Role})
	}
	out["rooms"] = roomsOut
	out["users"] = usersOut
	c.JSON(http.StatusOK, out)
}

func (sc *SimulationController) ListByPractice(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sims, err := sc.Scheduler.ListSimulations(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(sims))
	for _, s := range sims {
		out = append(out, simulationJSON(s))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (sc *SimulationController) UpdateSimulation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateSimulationRequest
	if !bindJSON(c, &req) {
		return
	}
	sim, err := sc.Scheduler.UpdateSimulation(c.Request.Context(), id, req.RoomIDs,
		scheduling.Window{Start: req.StartsAt, End: req.EndsAt})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, simulationJSON(sim))
}

func (sc *SimulationController) DeleteSimulation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := sc.Scheduler.DeleteSimulation(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// AssignUsers replaces the participant list.
func (sc *SimulationController) AssignUsers(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req assignUsersRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := sc.Scheduler.AssignUsers(c.Request.Context(), id, req.UserIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "assigned", "count": len(req.UserIDs)})
}
