package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zaqqye/simlab_backend/internal/apperr"
	"github.com/zaqqye/simlab_backend/internal/grading"
	"github.com/zaqqye/simlab_backend/internal/middleware"
	"github.com/zaqqye/simlab_backend/internal/models"
	"github.com/zaqqye/simlab_backend/internal/scheduling"
	"github.com/zaqqye/simlab_backend/internal/store"
)

type api struct {
	store      *store.MemoryStore
	router     *gin.Engine
	instructor models.User
	student    models.User
	other      models.User
	class      models.Class
	practice   models.Practice
	roomA      models.Room
	roomB      models.Room
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	a := &api{
		store:      st,
		instructor: st.PutUser(models.User{FullName: "Iris Instructor", Role: models.RoleInstructor, Active: true}),
		student:    st.PutUser(models.User{FullName: "Sam Student", Role: models.RoleStudent, Active: true}),
		other:      st.PutUser(models.User{FullName: "Olive Other", Role: models.RoleStudent, Active: true}),
		class:      st.PutClass(models.Class{Name: "Nursing 2A"}),
		roomA:      st.PutRoom(models.Room{Name: "Sim A", Capacity: 6, Active: true}),
		roomB:      st.PutRoom(models.Room{Name: "Sim B", Capacity: 12, Active: true}),
	}
	a.practice = st.PutPractice(models.Practice{
		ClassIDRef:       a.class.ID,
		Name:             "Sepsis",
		Gradeable:        true,
		NumberOfGroups:   2,
		MaxStudentsGroup: 4,
	})
	st.Enroll(a.class.ID, a.student.ID, a.other.ID)

	sched := scheduling.NewScheduler(st, scheduling.NewLocalReserver(time.Second))
	sims := &SimulationController{Scheduler: sched}
	rooms := &RoomController{Checker: sched.Checker()}
	rubrics := &RubricController{Engine: grading.NewRubricEngine(st)}
	grades := &GradeController{Aggregator: grading.NewAggregator(st)}

	r := gin.New()
	g := r.Group("/", func(c *gin.Context) {
		if u, err := st.FindUser(c.Request.Context(), c.GetHeader("X-User")); err == nil {
			middleware.SetUser(c, u)
		}
	})
	g.GET("/rooms/availability", rooms.Availability)
	g.POST("/simulations", sims.CreateSimulation)
	g.GET("/simulations/:id", sims.GetSimulation)
	g.PUT("/simulations/:id", sims.UpdateSimulation)
	g.DELETE("/simulations/:id", sims.DeleteSimulation)
	g.PUT("/simulations/:id/users", sims.AssignUsers)
	g.GET("/practices/:id/simulations", sims.ListByPractice)
	g.POST("/simulations/:id/rubric", rubrics.CreateRubric)
	g.GET("/simulations/:id/rubric", rubrics.RubricForSimulation)
	g.GET("/rubric-templates", rubrics.ListTemplates)
	g.POST("/rubric-templates", rubrics.CreateTemplate)
	g.PUT("/rubric-templates/:id/criteria", rubrics.UpdateTemplateCriteria)
	g.POST("/rubric-templates/:id/archive", rubrics.ArchiveTemplate)
	g.PUT("/rubrics/:id/criteria/:criteria_id", rubrics.ScoreCriteria)
	g.POST("/rubrics/:id/finalize", rubrics.FinalizeRubric)
	g.POST("/rubrics/:id/abandon", rubrics.AbandonRubric)
	g.PUT("/classes/:id/weights", grades.ConfigureWeights)
	g.GET("/classes/:id/grades", grades.ClassGrades)
	g.GET("/classes/:id/grades/me", grades.MyGrade)
	g.GET("/classes/:id/students/:user_id/grade", grades.StudentGrade)
	g.POST("/practices/:id/not-gradeable", grades.MarkNotGradeable)
	a.router = r
	return a
}

func (a *api) do(t *testing.T, method, path string, body any, user models.User) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user.ID)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func at(h, m int) time.Time { return time.Date(2026, 4, 6, h, m, 0, 0, time.UTC) }

func (a *api) schedule(t *testing.T, rooms []string, start, end time.Time, group int) (*httptest.ResponseRecorder, map[string]any) {
	return a.do(t, http.MethodPost, "/simulations", gin.H{
		"practice_id":  a.practice.ID,
		"room_ids":     rooms,
		"starts_at":    start,
		"ends_at":      end,
		"group_number": group,
	}, a.instructor)
}

func TestSimulationEndpoints(t *testing.T) {
	a := newAPI(t)

	w, body := a.schedule(t, []string{a.roomA.ID}, at(9, 0), at(10, 0), 1)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	simID := body["id"].(string)
	assert.Equal(t, string(models.GradePending), body["grade_status"])

	w, body = a.schedule(t, []string{a.roomB.ID, a.roomA.ID}, at(9, 30), at(11, 0), 2)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperr.CodeRoomNotAvailable), body["code"])

	w, _ = a.schedule(t, []string{a.roomA.ID}, at(10, 0), at(11, 0), 2)
	assert.Equal(t, http.StatusCreated, w.Code, "touching windows do not conflict")

	w, body = a.schedule(t, []string{a.roomB.ID}, at(12, 0), at(11, 0), 2)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.CodeInvalidWindow), body["code"])

	w, body = a.schedule(t, []string{a.roomB.ID}, at(12, 0), at(13, 0), 3)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.CodeInvalidGroup), body["code"])

	w, _ = a.schedule(t, []string{"not-a-uuid"}, at(12, 0), at(13, 0), 1)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodPut, "/simulations/"+simID+"/users", gin.H{"user_ids": []string{a.student.ID}}, a.instructor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = a.do(t, http.MethodGet, "/simulations/"+simID, nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["rooms"], 1)
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, a.student.ID, users[0].(map[string]any)["id"])

	w, body = a.do(t, http.MethodPut, "/simulations/"+simID, gin.H{
		"room_ids":  []string{a.roomB.ID},
		"starts_at": at(14, 0),
		"ends_at":   at(15, 0),
	}, a.instructor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, at(14, 0).Format(time.RFC3339), body["starts_at"])

	w, body = a.do(t, http.MethodGet, "/practices/"+a.practice.ID+"/simulations", nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)

	w, _ = a.do(t, http.MethodDelete, "/simulations/"+simID, nil, a.instructor)
	assert.Equal(t, http.StatusOK, w.Code)
	w, body = a.do(t, http.MethodGet, "/simulations/"+simID, nil, a.instructor)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.CodeSimulationNotFound), body["code"])

	w, _ = a.do(t, http.MethodGet, "/simulations/nope", nil, a.instructor)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomAvailabilityEndpoint(t *testing.T) {
	a := newAPI(t)
	w, _ := a.schedule(t, []string{a.roomA.ID}, at(9, 0), at(10, 0), 1)
	require.Equal(t, http.StatusCreated, w.Code)

	query := func(start, end time.Time, seats int) string {
		return fmt.Sprintf("/rooms/availability?start=%s&end=%s&seats=%d",
			start.Format(time.RFC3339), end.Format(time.RFC3339), seats)
	}
	w, body := a.do(t, http.MethodGet, query(at(9, 30), at(10, 30), 0), nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, a.roomB.ID, data[0].(map[string]any)["id"])

	w, body = a.do(t, http.MethodGet, query(at(10, 0), at(11, 0), 0), nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2, "smallest room first, both free")
	assert.Equal(t, a.roomA.ID, body["data"].([]any)[0].(map[string]any)["id"])

	w, body = a.do(t, http.MethodGet, query(at(10, 0), at(11, 0), 8), nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)

	w, _ = a.do(t, http.MethodGet, query(at(11, 0), at(10, 0), 0), nil, a.instructor)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodGet, "/rooms/availability?start=yesterday", nil, a.instructor)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func scale(lo, hi float64) gin.H { return gin.H{"lower": lo, "upper": hi} }

func TestRubricAndGradeFlow(t *testing.T) {
	a := newAPI(t)
	w, body := a.schedule(t, []string{a.roomA.ID}, at(9, 0), at(10, 0), 1)
	require.Equal(t, http.StatusCreated, w.Code)
	simID := body["id"].(string)
	w, _ = a.do(t, http.MethodPut, "/simulations/"+simID+"/users", gin.H{"user_ids": []string{a.student.ID}}, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = a.do(t, http.MethodPost, "/rubric-templates", gin.H{
		"title": "Sepsis rubric",
		"criteria": []gin.H{
			{"id": "communication", "name": "Communication", "points": 5,
				"scale": []gin.H{scale(0, 2), scale(3, 4), scale(5, 5)}},
			{"id": "technique", "name": "Technique", "points": 5, "scale": []gin.H{scale(0, 5)}},
		},
	}, a.instructor)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tplID := body["id"].(string)

	w, body = a.do(t, http.MethodPost, "/rubric-templates", gin.H{
		"title":    "Broken",
		"criteria": []gin.H{{"id": "x", "points": 5, "scale": []gin.H{scale(1, 5)}}},
	}, a.instructor)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.CodeInvalidRubric), body["code"])

	w, body = a.do(t, http.MethodPost, "/simulations/"+simID+"/rubric", gin.H{"template_id": tplID}, a.instructor)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rubricID := body["id"].(string)
	assert.Len(t, body["evaluated"], 2)

	w, body = a.do(t, http.MethodPost, "/simulations/"+simID+"/rubric", gin.H{"template_id": tplID}, a.instructor)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperr.CodeRubricExists), body["code"])

	w, body = a.do(t, http.MethodPost, "/rubrics/"+rubricID+"/finalize", nil, a.instructor)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(apperr.CodeIncompleteRubric), body["code"])

	score := func(criteria string, v float64) *httptest.ResponseRecorder {
		w, _ := a.do(t, http.MethodPut, "/rubrics/"+rubricID+"/criteria/"+criteria, gin.H{"score": v, "comment": "ok"}, a.instructor)
		return w
	}
	assert.Equal(t, http.StatusUnprocessableEntity, score("communication", 2.5).Code)
	assert.Equal(t, http.StatusNotFound, score("posture", 1).Code)
	require.Equal(t, http.StatusOK, score("communication", 4).Code)
	require.Equal(t, http.StatusOK, score("technique", 3).Code)

	w, _ = a.do(t, http.MethodPut, "/rubrics/"+rubricID+"/criteria/technique", gin.H{"comment": "missing score"}, a.instructor)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = a.do(t, http.MethodPut, "/rubric-templates/"+tplID+"/criteria", gin.H{
		"criteria": []gin.H{{"id": "technique", "points": 5, "scale": []gin.H{scale(0, 5)}}},
	}, a.instructor)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperr.CodeTemplateLocked), body["code"])

	w, body = a.do(t, http.MethodPost, "/rubrics/"+rubricID+"/finalize", nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3.5, body["grade"])
	w, body = a.do(t, http.MethodPost, "/rubrics/"+rubricID+"/finalize", nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.5, body["grade"])

	w, body = a.do(t, http.MethodPost, "/rubrics/"+rubricID+"/abandon", nil, a.instructor)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperr.CodeGradeStatusTerminal), body["code"])

	w, body = a.do(t, http.MethodPut, "/classes/"+a.class.ID+"/weights", gin.H{"weights": gin.H{a.practice.ID: 90}}, a.instructor)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(apperr.CodeInvalidWeighting), body["code"])
	w, _ = a.do(t, http.MethodPut, "/classes/"+a.class.ID+"/weights", gin.H{"weights": gin.H{a.practice.ID: 100}}, a.instructor)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = a.do(t, http.MethodGet, "/classes/"+a.class.ID+"/grades/me", nil, a.student)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3.5, body["final_grade"])

	w, _ = a.do(t, http.MethodGet, "/classes/"+a.class.ID+"/students/"+a.student.ID+"/grade", nil, a.other)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, body = a.do(t, http.MethodGet, "/classes/"+a.class.ID+"/students/"+a.other.ID+"/grade", nil, a.other)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, body["final_grade"])

	w, body = a.do(t, http.MethodGet, "/classes/"+a.class.ID+"/grades", nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)

	w, body = a.do(t, http.MethodPost, "/practices/"+a.practice.ID+"/not-gradeable", nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, body["simulations_not_evaluable"], "the only simulation is already registered")
}

func TestTemplateListAndArchive(t *testing.T) {
	a := newAPI(t)
	w, body := a.do(t, http.MethodPost, "/rubric-templates", gin.H{
		"title":    "Handoff",
		"criteria": []gin.H{{"id": "sbar", "points": 4, "scale": []gin.H{scale(0, 4)}}},
	}, a.instructor)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := body["id"].(string)

	w, _ = a.do(t, http.MethodPost, "/rubric-templates/"+id+"/archive", nil, a.instructor)
	require.Equal(t, http.StatusOK, w.Code)

	_, body = a.do(t, http.MethodGet, "/rubric-templates", nil, a.instructor)
	assert.Len(t, body["data"], 0)
	_, body = a.do(t, http.MethodGet, "/rubric-templates?include_archived=true", nil, a.instructor)
	assert.Len(t, body["data"], 1)
}

func TestRespondError(t *testing.T) {
	type payload struct {
		Name string `json:"name" binding:"required"`
	}
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    func(c *gin.Context) error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name: "validation",
			err: func(c *gin.Context) error {
				var p payload
				return c.ShouldBindJSON(&p)
			},
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "required", body["fields"].(map[string]any)["name"])
			},
		},
		{
			name:   "domain",
			err:    func(*gin.Context) error { return fmt.Errorf("wrap: %w", apperr.ErrRoomNotFound.WithMeta("room_id", "r1")) },
			status: http.StatusNotFound,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, string(apperr.CodeRoomNotFound), body["code"])
				assert.Equal(t, "r1", body["meta"].(map[string]any)["room_id"])
			},
		},
		{
			name:   "unique violation",
			err:    func(*gin.Context) error { return &pgconn.PgError{Code: "23505"} },
			status: http.StatusConflict,
		},
		{
			name:   "record not found",
			err:    func(*gin.Context) error { return gorm.ErrRecordNotFound },
			status: http.StatusNotFound,
		},
		{
			name:   "unknown",
			err:    func(*gin.Context) error { return errors.New("disk on fire") },
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "internal error", body["error"])
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
			c.Request.Header.Set("Content-Type", "application/json")
			respondError(c, tc.err(c))
			assert.Equal(t, tc.status, w.Code)
			if tc.check != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				tc.check(t, body)
			}
		})
	}
}

func TestParseListQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := func(q string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+q, nil)
		return c
	}

	lq := parseListQuery(ctx("limit=5&page=3&sort_by=name&sort_dir=asc"), 20, roomSorts, "created_at")
	assert.Equal(t, listQuery{Limit: 5, Page: 3, SortCol: "name", SortDir: "ASC"}, lq)
	assert.Equal(t, "name ASC", lq.Order())
	assert.Equal(t, 3, lq.Meta(42)["page"])

	lq = parseListQuery(ctx("limit=-1&page=x&sort_by=password;drop&sort_dir=sideways&all=1"), 20, roomSorts, "created_at")
	assert.Equal(t, listQuery{All: true, Limit: 20, Page: 1, SortCol: "created_at", SortDir: "DESC"}, lq)
	meta := lq.Meta(7)
	assert.Equal(t, int64(7), meta["total"])
	assert.NotContains(t, meta, "page")
}

func TestParseUserCSV(t *testing.T) {
	data := "\xEF\xBB\xBFfull_name;email;role;class_name;active\r\n" +
		"Ana Lima;ANA@example.com;;Nursing 2A;yes\r\n" +
		"Ben Cruz;ben@example.com;instructor;Nursing 2A;\r\n" +
		"Cy;;student;;\r\n" +
		"Dee;dee@example.com;nurse;;\r\n" +
		"Eve;eve@example.com;student;;maybe\r\n" +
		"Ana Again;ana@example.com;;;\r\n" +
		"Finn;finn@example.com;admin;;0\r\n"

	rows, failures, err := parseUserCSV([]byte(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, userImportRow{Row: 2, FullName: "Ana Lima", Email: "ana@example.com", Role: models.RoleStudent, Active: true, ClassName: "Nursing 2A"}, rows[0])
	assert.Equal(t, userImportRow{Row: 8, FullName: "Finn", Email: "finn@example.com", Role: models.RoleAdmin, Active: false}, rows[1])

	rowsWithErrors := map[int]bool{}
	for _, f := range failures {
		rowsWithErrors[f.Row] = true
	}
	assert.Equal(t, map[int]bool{3: true, 4: true, 5: true, 6: true, 7: true}, rowsWithErrors)

	_, _, err = parseUserCSV([]byte("name,mail\nx,y\n"))
	assert.EqualError(t, err, "missing header column: full_name")
	_, _, err = parseUserCSV([]byte("  \n"))
	assert.Error(t, err)
}

func TestNormalizeIDs(t *testing.T) {
	a := "3F2504E0-4F89-11D3-9A0C-0305E82C3301"
	b := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	ids, err := normalizeIDs([]string{a, " ", b, "3f2504e0-4f89-11d3-9a0c-0305e82c3301"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3f2504e0-4f89-11d3-9a0c-0305e82c3301", b}, ids)

	_, err = normalizeIDs([]string{"nope"})
	assert.Error(t, err)
}

func TestLooseString(t *testing.T) {
	var req struct {
		Password *looseString `json:"password"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"password": 123456}`), &req))
	assert.Equal(t, "123456", req.Password.String())
	require.NoError(t, json.Unmarshal([]byte(`{"password": " s3cret "}`), &req))
	assert.Equal(t, "s3cret", req.Password.String())
	assert.Error(t, json.Unmarshal([]byte(`{"password": true}`), &req))
}
