// Package response формирует JSON-ответы обработчиков в едином конверте
// {status, error, data}.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"
)

// Response конверт ответа. Status равен "OK" или "Error", Error заполняется
// только при неуспехе.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse тип ошибки для аннотаций @Failure.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
}

// EntitlementResponse отказ в доступе к платному контенту.
type EntitlementResponse struct {
	Status               string `json:"status" example:"Error"`
	Error                string `json:"error" example:"active subscription or access code required"`
	SubscriptionRequired bool   `json:"subscription_required" example:"true"`
}

// LockedResponse отказ во входе для заблокированной учетной записи.
type LockedResponse struct {
	Status      string    `json:"status" example:"Error"`
	Error       string    `json:"error"`
	Locked      bool      `json:"locked" example:"true"`
	LockedUntil time.Time `json:"locked_until"`
	Minutes     int       `json:"minutes_remaining" example:"15"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// EntitlementRequired возвращает отказ с флагом subscription_required.
func EntitlementRequired(msg string) EntitlementResponse {
	return EntitlementResponse{
		Status:               StatusError,
		Error:                msg,
		SubscriptionRequired: true,
	}
}

// Locked возвращает отказ для заблокированной учетной записи.
func Locked(until time.Time, minutes int) LockedResponse {
	return LockedResponse{
		Status:      StatusError,
		Error:       fmt.Sprintf("account is locked due to too many failed login attempts, try again in %d minutes", minutes),
		Locked:      true,
		LockedUntil: until,
		Minutes:     minutes,
	}
}

// OK пишет успешный ответ с кодом status.
func OK(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, StatusOKWithData(data))
}

// Fail пишет ответ с ошибкой и кодом status.
func Fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, Error(msg))
}

// Known возвращает ту из known, которой соответствует err, иначе сам err.
// Клиент видит текст ошибки без префиксов операций, которыми ее обернули.
func Known(err error, known ...error) error {
	for _, k := range known {
		if errors.Is(err, k) {
			return k
		}
	}
	return err
}

// ValidationError собирает нарушения валидации в одно сообщение через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email address", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s characters long", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s characters long", err.Field(), err.Param()))
		case "gt", "gte", "lte":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is out of range", err.Field()))
		case "eqfield":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must match %s", err.Field(), err.Param()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "username":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be 3-20 characters: letters, digits, _ or -", err.Field()))
		case "numeric":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}
