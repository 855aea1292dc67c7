package controllers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/utils"
)

type AdminController struct {
	DB *gorm.DB
}

type userImportError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

// userImportRow is one parsed CSV line. Password is empty when the file left
// it out and one must be generated.
type userImportRow struct {
	Row       int
	FullName  string
	Email     string
	Password  string
	Role      string
	Active    bool
	ClassName string
}

func parseBoolDefaultTrue(val string) (bool, bool) {
	if val == "" {
		return true, false
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "y", "active":
		return true, true
	case "false", "0", "no", "n", "inactive":
		return false, true
	default:
		return true, false
	}
}

// parseUserCSV reads full_name, email, and optional password, role, active
// and class_name columns (case-insensitive). Comma and semicolon delimiters
// and CR/CRLF line endings are accepted. Rows that fail validation are
// reported instead of returned.
func parseUserCSV(data []byte) ([]userImportRow, []userImportError, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, errors.New("file is empty")
	}
	data = bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
	data = bytes.ReplaceAll(data, []byte{'\r'}, []byte{'\n'})
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	if bytes.Contains(firstLine, []byte{';'}) && !bytes.Contains(firstLine, []byte{','}) {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if err != nil {
		return nil, nil, errors.New("failed to read header")
	}
	headerIdx := make(map[string]int, len(header))
	for idx, col := range header {
		key := strings.ToLower(strings.Trim(strings.TrimSpace(col), "\"'"))
		if key != "" {
			headerIdx[key] = idx
		}
	}
	for _, key := range []string{"full_name", "email"} {
		if _, ok := headerIdx[key]; !ok {
			return nil, nil, fmt.Errorf("missing header column: %s", key)
		}
	}
	getVal := func(record []string, key string) string {
		idx, ok := headerIdx[key]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var (
		rows     []userImportRow
		failures []userImportError
		seen     = map[string]bool{}
	)
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			failures = append(failures, userImportError{Row: rowNum, Error: fmt.Sprintf("failed to read row: %v", err)})
			continue
		}
		row := userImportRow{
			Row:       rowNum,
			FullName:  getVal(record, "full_name"),
			Email:     strings.ToLower(getVal(record, "email")),
			Password:  getVal(record, "password"),
			Role:      strings.ToLower(getVal(record, "role")),
			ClassName: getVal(record, "class_name"),
		}
		fail := func(msg string) {
			failures = append(failures, userImportError{Row: rowNum, Email: row.Email, Error: msg})
		}
		if row.FullName == "" || row.Email == "" {
			fail("full_name and email are required")
			continue
		}
		if seen[row.Email] {
			fail("duplicate email in file")
			continue
		}
		if row.Role == "" {
			row.Role = models.RoleStudent
		}
		if !IsValidRole(row.Role) {
			fail("invalid role")
			continue
		}
		if row.ClassName != "" && row.Role != models.RoleStudent {
			fail("class enrollment only allowed for student role")
			continue
		}
		activeStr := getVal(record, "active")
		active, provided := parseBoolDefaultTrue(activeStr)
		if activeStr != "" && !provided {
			fail("invalid active value")
			continue
		}
		row.Active = active
		seen[row.Email] = true
		rows = append(rows, row)
	}
	return rows, failures, nil
}

// ImportUsers bulk-creates users from a CSV upload, optionally enrolling
// students into a class by name. Rows without a password get a generated one,
// returned once in the response.
func (a *AdminController) ImportUsers(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse form"})
		return
	}
	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(fileHeader.Filename)), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv files are allowed"})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	rows, failures, err := parseUserCSV(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := a.DB.WithContext(c.Request.Context())
	classCache := make(map[string]models.Class)
	generated := gin.H{}
	created := 0
	for _, row := range rows {
		password := row.Password
		if password == "" {
			if password, err = utils.GeneratePassword(10); err != nil {
				respondError(c, err)
				return
			}
		}
		hashed, err := utils.HashPassword(password)
		if err != nil {
			failures = append(failures, userImportError{Row: row.Row, Email: row.Email, Error: "failed to hash password"})
			continue
		}
		user := models.User{
			FullName: row.FullName,
			Email:    row.Email,
			Password: hashed,
			Role:     row.Role,
			Active:   row.Active,
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			if row.ClassName == "" {
				return nil
			}
			key := strings.ToLower(row.ClassName)
			class, ok := classCache[key]
			if !ok {
				if err := tx.Where("LOWER(name) = ?", key).First(&class).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("class '%s' not found", row.ClassName)
					}
					return err
				}
				classCache[key] = class
			}
			return tx.Create(&models.ClassEnrollment{ClassIDRef: class.ID, UserIDRef: user.ID}).Error
		})
		if err != nil {
			failures = append(failures, userImportError{Row: row.Row, Email: row.Email, Error: fmt.Sprintf("failed to insert user: %v", err)})
			continue
		}
		if row.Password == "" {
			generated[row.Email] = password
		}
		created++
	}

	log.Infof("user import: %d of %d rows inserted", created, len(rows)+len(failures))
	c.JSON(http.StatusOK, gin.H{
		"summary": gin.H{
			"total_rows": len(rows) + len(failures),
			"inserted":   created,
			"failed":     len(failures),
		},
		"errors":              failures,
		"generated_passwords": generated,
	})
}

var userSorts = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"full_name":  "full_name",
	"email":      "email",
	"role":       "role",
	"active":     "active",
}

// ListUsers supports limit, page, all, sort_by, sort_dir plus the q, role,
// active and class_id filters.
func (a *AdminController) ListUsers(c *gin.Context) {
	lq := parseListQuery(c, 50, userSorts, "created_at")
	qText := strings.TrimSpace(c.Query("q"))
	role := strings.TrimSpace(strings.ToLower(c.Query("role")))
	activeStr := strings.TrimSpace(c.Query("active"))
	classID := strings.TrimSpace(c.Query("class_id"))

	db := a.DB.WithContext(c.Request.Context())
	if role != "" && !IsValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	active, activeOK := parseBoolFilter(activeStr)
	if activeStr != "" && !activeOK {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active value"})
		return
	}
	filters := func(q *gorm.DB) *gorm.DB {
		if qText != "" {
			like := "%" + qText + "%"
			q = q.Where("full_name ILIKE ? OR email ILIKE ?", like, like)
		}
		if role != "" {
			q = q.Where("role = ?", role)
		}
		if activeStr != "" {
			q = q.Where("active = ?", active)
		}
		if classID != "" {
			sub := db.Model(&models.ClassEnrollment{}).Select("user_id_ref").Where("class_id_ref = ?", classID)
			q = q.Where("id IN (?)", sub)
		}
		return q
	}

	var total int64
	if err := db.Model(&models.User{}).Scopes(filters).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var users []models.User
	if err := lq.Apply(db.Model(&models.User{}).Scopes(filters)).Find(&users).Error; err != nil {
		respondError(c, err)
		return
	}

	classes, err := a.enrolledClasses(db, users)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		entry := userJSON(u)
		entry["classes"] = classes[u.ID]
		out = append(out, entry)
	}
	meta := lq.Meta(total)
	if qText != "" {
		meta["q"] = qText
	}
	if role != "" {
		meta["role"] = role
	}
	if activeStr != "" {
		meta["active"] = activeStr
	}
	if classID != "" {
		meta["class_id"] = classID
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

type classRow struct {
	UserID    string
	ClassID   string
	ClassName string
}

func (a *AdminController) enrolledClasses(db *gorm.DB, users []models.User) (map[string][]gin.H, error) {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	uuids, err := normalizeIDs(ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]gin.H, len(users))
	if len(uuids) == 0 {
		return out, nil
	}
	var rows []classRow
	if err := db.Table("class_enrollments AS ce").
		Select("ce.user_id_ref AS user_id, cl.id AS class_id, cl.name AS class_name").
		Joins("JOIN classes cl ON cl.id = ce.class_id_ref").
		Where("ce.user_id_ref IN ?", uuids).
		Order("ce.created_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.UserID] = append(out[r.UserID], gin.H{"id": r.ClassID, "name": r.ClassName})
	}
	return out, nil
}

func userJSON(u models.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"full_name":  u.FullName,
		"email":      u.Email,
		"role":       u.Role,
		"active":     u.Active,
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	}
}

func (a *AdminController) GetUser(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	var u models.User
	if err := a.DB.WithContext(c.Request.Context()).Where("id = ?", id).First(&u).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, userJSON(u))
}

type updateUserRequest struct {
	FullName *string      `json:"full_name"`
	Email    *string      `json:"email" binding:"omitempty,email"`
	Password *looseString `json:"password"`
	Role     *string      `json:"role"`
	Active   *bool        `json:"active"`
}

func (a *AdminController) UpdateUser(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	db := a.DB.WithContext(c.Request.Context())
	var u models.User
	if err := db.Where("id = ?", id).First(&u).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	var req updateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.FullName != nil {
		u.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil {
		if !IsValidRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		u.Role = *req.Role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != nil {
		if raw := strings.TrimSpace(req.Password.String()); raw != "" {
			pw, err := utils.HashPassword(raw)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
				return
			}
			u.Password = pw
		}
	}
	if err := db.Save(&u).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// DeleteUser removes the user with its tokens, enrollments and simulation
// participations.
func (a *AdminController) DeleteUser(c *gin.Context) {
	id, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	if current, ok := currentUserID(c); ok && current == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete yourself"})
		return
	}
	err := a.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id_ref = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id_ref = ?", id).Delete(&models.ClassEnrollment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id_ref = ?", id).Delete(&models.SimulationUser{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
