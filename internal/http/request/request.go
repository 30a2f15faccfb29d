// Package request разбирает входящие запросы: тело JSON, параметры пути и пагинацию.
package request

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// NewValidator создает валидатор с правилом username и именами полей из json-тегов.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Decode читает тело JSON в dst и проверяет его. При ошибке пишет ответ 400
// и возвращает false.
func Decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, v *validator.Validate, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "failed to decode request")
		return false
	}

	if err := v.Struct(dst); err != nil {
		log.Warn("validation failed", sl.Err(err))
		var verrs validator.ValidationErrors
		render.Status(r, http.StatusBadRequest)
		if errors.As(err, &verrs) {
			render.JSON(w, r, response.ValidationError(verrs))
		} else {
			render.JSON(w, r, response.Error("invalid request"))
		}
		return false
	}
	return true
}

// ID разбирает числовой параметр пути name.
func ID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// Int читает целый query-параметр, def при отсутствии или ошибке.
func Int(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// Page параметры page и per_page.
func Page(r *http.Request) models.Page {
	return models.Page{
		Page:    Int(r, "page", 1),
		PerPage: Int(r, "per_page", 0),
	}
}

// Meta IP и User-Agent клиента. IP берется из RemoteAddr, который
// middleware.RealIP уже заменил на адрес из X-Forwarded-For.
func Meta(r *http.Request) models.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return models.RequestMeta{IP: ip, UserAgent: r.UserAgent()}
}

// BearerToken токен из заголовка Authorization.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}
