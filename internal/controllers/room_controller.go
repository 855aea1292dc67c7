package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/scheduling"
)

type RoomController struct {
	DB      *gorm.DB
	Checker *scheduling.AvailabilityChecker
}

type createRoomRequest struct {
	Name       string  `json:"name" binding:"required"`
	Capacity   int     `json:"capacity" binding:"required,gt=0"`
	RoomTypeID *string `json:"room_type_id" binding:"omitempty,uuid"`
	Active     *bool   `json:"active"`
}

type updateRoomRequest struct {
	Name       *string `json:"name"`
	Capacity   *int    `json:"capacity" binding:"omitempty,gt=0"`
	RoomTypeID *string `json:"room_type_id" binding:"omitempty,uuid"`
	Active     *bool   `json:"active"`
}

var roomSorts = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"name":       "name",
	"capacity":   "capacity",
	"active":     "active",
}

func roomJSON(r models.Room) gin.H {
	return gin.H{
		"id":           r.ID,
		"name":         r.Name,
		"capacity":     r.Capacity,
		"room_type_id": r.RoomTypeIDRef,
		"active":       r.Active,
		"created_at":   r.CreatedAt,
		"updated_at":   r.UpdatedAt,
	}
}

// ListRooms supports q, active, room_type_id and min_capacity filters on top
// of the common pagination parameters.
func (rc *RoomController) ListRooms(c *gin.Context) {
	lq := parseListQuery(c, 20, roomSorts, "created_at")
	qText := strings.TrimSpace(c.Query("q"))
	activeStr := strings.TrimSpace(c.Query("active"))
	typeID := strings.TrimSpace(c.Query("room_type_id"))
	minCap := 0
	if v := c.Query("min_capacity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_capacity"})
			return
		}
		minCap = n
	}
	active, activeOK := parseBoolFilter(activeStr)
	if activeStr != "" && !activeOK {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active value"})
		return
	}
	filters := func(q *gorm.DB) *gorm.DB {
		if qText != "" {
			q = q.Where("name ILIKE ?", "%"+qText+"%")
		}
		if activeStr != "" {
			q = q.Where("active = ?", active)
		}
		if typeID != "" {
			q = q.Where("room_type_id_ref = ?", typeID)
		}
		if minCap > 0 {
			q = q.Where("capacity >= ?", minCap)
		}
		return q
	}

	db := rc.DB.WithContext(c.Request.Context())
	var total int64
	if err := db.Model(&models.Room{}).Scopes(filters).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var rooms []models.Room
	if err := lq.Apply(db.Model(&models.Room{}).Scopes(filters)).Find(&rooms).Error; err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomJSON(r))
	}
	meta := lq.Meta(total)
	if qText != "" {
		meta["q"] = qText
	}
	if activeStr != "" {
		meta["active"] = activeStr
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

func (rc *RoomController) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	room := models.Room{
		Name:          strings.TrimSpace(req.Name),
		Capacity:      req.Capacity,
		RoomTypeIDRef: req.RoomTypeID,
		Active:        active,
	}
	if err := rc.DB.WithContext(c.Request.Context()).Create(&room).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": room.ID})
}

func (rc *RoomController) GetRoom(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var room models.Room
	if err := rc.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&room).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, roomJSON(room))
}

// UpdateRoom edits reference data only. Existing bookings are kept even when
// the capacity shrinks.
func (rc *RoomController) UpdateRoom(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := rc.DB.WithContext(c.Request.Context())
	var room models.Room
	if err := db.Where("id = ?", id).First(&room).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	var req updateRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Name != nil {
		room.Name = strings.TrimSpace(*req.Name)
	}
	if req.Capacity != nil {
		room.Capacity = *req.Capacity
	}
	if req.RoomTypeID != nil {
		room.RoomTypeIDRef = req.RoomTypeID
	}
	if req.Active != nil {
		room.Active = *req.Active
	}
	if err := db.Save(&room).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (rc *RoomController) DeleteRoom(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	db := rc.DB.WithContext(c.Request.Context())
	var booked int64
	if err := db.Model(&models.Booking{}).Where("room_id_ref = ?", id).Count(&booked).Error; err != nil {
		respondError(c, err)
		return
	}
	if booked > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "room has bookings"})
		return
	}
	if err := db.Where("id = ?", id).Delete(&models.Room{}).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Availability lists the active rooms free over [start, end) with at least
// seats capacity.
func (rc *RoomController) Availability(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC3339"})
		return
	}
	seats := 0
	if v := c.Query("seats"); v != "" {
		if seats, err = strconv.Atoi(v); err != nil || seats < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seats"})
			return
		}
	}
	w := scheduling.Window{Start: start, End: end}
	if !w.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be before end"})
		return
	}
	rooms, err := rc.Checker.FreeRooms(c.Request.Context(), w, seats)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

type roomTypeRequest struct {
	Name string `json:"name" binding:"required"`
}

func (rc *RoomController) ListRoomTypes(c *gin.Context) {
	var types []models.RoomType
	if err := rc.DB.WithContext(c.Request.Context()).Order("name ASC").Find(&types).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": types})
}

func (rc *RoomController) CreateRoomType(c *gin.Context) {
	var req roomTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	rt := models.RoomType{Name: strings.TrimSpace(req.Name)}
	if err := rc.DB.WithContext(c.Request.Context()).Create(&rt).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "created", "id": rt.ID})
}
