// Package apperr holds the user-facing error kinds of the scheduling and
// grading engines.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Scheduling
	CodePracticeNotFound         Code = "PRACTICE_NOT_FOUND"
	CodeSimulationNotFound       Code = "SIMULATION_NOT_FOUND"
	CodeRoomNotFound             Code = "ROOM_NOT_FOUND"
	CodeRoomNotAvailable         Code = "ROOM_NOT_AVAILABLE"
	CodeRoomCapacityInsufficient Code = "ROOM_CAPACITY_INSUFFICIENT"
	CodeInvalidWindow            Code = "INVALID_WINDOW"
	CodeInvalidGroup             Code = "INVALID_GROUP"

	// Rubrics
	CodeCriteriaNotFound    Code = "CRITERIA_NOT_FOUND"
	CodeScoreOutOfRange     Code = "SCORE_OUT_OF_RANGE"
	CodeIncompleteRubric    Code = "INCOMPLETE_RUBRIC"
	CodeInvalidRubric       Code = "INVALID_RUBRIC"
	CodeTemplateNotFound    Code = "TEMPLATE_NOT_FOUND"
	CodeTemplateLocked      Code = "TEMPLATE_LOCKED"
	CodeRubricNotFound      Code = "RUBRIC_NOT_FOUND"
	CodeRubricExists        Code = "RUBRIC_EXISTS"
	CodeGradeStatusTerminal Code = "GRADE_STATUS_TERMINAL"

	// Grades
	CodeInvalidWeighting Code = "INVALID_WEIGHTING"
	CodeUserNotFound     Code = "USER_NOT_FOUND"
	CodeClassNotFound    Code = "CLASS_NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodePracticeNotFound,
		CodeSimulationNotFound,
		CodeRoomNotFound,
		CodeCriteriaNotFound,
		CodeTemplateNotFound,
		CodeRubricNotFound,
		CodeUserNotFound,
		CodeClassNotFound:
		return http.StatusNotFound

	case CodeRoomNotAvailable,
		CodeRubricExists,
		CodeTemplateLocked,
		CodeGradeStatusTerminal:
		return http.StatusConflict

	case CodeRoomCapacityInsufficient,
		CodeScoreOutOfRange,
		CodeIncompleteRubric,
		CodeInvalidWeighting:
		return http.StatusUnprocessableEntity

	case CodeInvalidWindow,
		CodeInvalidGroup,
		CodeInvalidRubric:
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a Code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Is reports a match on Code so sentinel comparisons work on errors carrying
// different messages.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New returns an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WithMeta returns a copy of e carrying an extra metadata entry.
func (e *Error) WithMeta(key, value string) *Error {
	meta := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	return &Error{Code: e.Code, Message: e.Message, Metadata: meta}
}

// Sentinels for errors.Is checks.
var (
	ErrPracticeNotFound         = New(CodePracticeNotFound, "practice not found")
	ErrSimulationNotFound       = New(CodeSimulationNotFound, "simulation not found")
	ErrRoomNotFound             = New(CodeRoomNotFound, "room not found")
	ErrRoomNotAvailable         = New(CodeRoomNotAvailable, "room not available")
	ErrRoomCapacityInsufficient = New(CodeRoomCapacityInsufficient, "room capacity insufficient")
	ErrInvalidWindow            = New(CodeInvalidWindow, "start must be before end")
	ErrInvalidGroup             = New(CodeInvalidGroup, "invalid group number")
	ErrCriteriaNotFound         = New(CodeCriteriaNotFound, "criteria not found")
	ErrScoreOutOfRange          = New(CodeScoreOutOfRange, "score out of range")
	ErrIncompleteRubric         = New(CodeIncompleteRubric, "rubric has unscored criteria")
	ErrInvalidRubric            = New(CodeInvalidRubric, "invalid rubric")
	ErrTemplateNotFound         = New(CodeTemplateNotFound, "rubric template not found")
	ErrTemplateLocked           = New(CodeTemplateLocked, "rubric template is in use by scored rubrics")
	ErrRubricNotFound           = New(CodeRubricNotFound, "rubric not found")
	ErrRubricExists             = New(CodeRubricExists, "simulation already has a rubric")
	ErrGradeStatusTerminal      = New(CodeGradeStatusTerminal, "grade status is terminal")
	ErrInvalidWeighting         = New(CodeInvalidWeighting, "practice weights must sum to 100")
	ErrUserNotFound             = New(CodeUserNotFound, "user not found")
	ErrClassNotFound            = New(CodeClassNotFound, "class not found")
)

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
