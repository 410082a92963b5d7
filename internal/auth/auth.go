package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iurnickita/cashback/internal/auth/config"
	"github.com/iurnickita/cashback/internal/store"
	"github.com/iurnickita/cashback/internal/token"
)

type Auth interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

type Users interface {
	AuthRegister(ctx context.Context, login string, passwordHash string) (string, error)
	AuthLogin(ctx context.Context, login string) (string, string, error)
}

const (
	HeaderUserCodeKey = "userCode"
	cookieUserToken   = "cashbackUserToken"
)

var ErrLoginIncorrect = errors.New("login or password is incorrect")

type auth struct {
	users  Users
	token  token.Token
	zaplog *zap.Logger
}

func NewAuth(cfg config.Config, users Users, zaplog *zap.Logger) Auth {
	return &auth{
		users:  users,
		token:  token.NewToken(cfg.TokenSecret, cfg.TokenTTL),
		zaplog: zaplog,
	}
}

type credentialsJSONRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func readCredentials(r *http.Request) (credentialsJSONRequest, bool) {
	var creds credentialsJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		return creds, false
	}
	return creds, creds.Login != "" && creds.Password != ""
}

func (a *auth) Register(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(r)
	if !ok {
		http.Error(w, "login and password are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userCode, err := a.users.AuthRegister(r.Context(), creds.Login, string(hash))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			a.zaplog.Error("register failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	a.authorize(w, userCode)
}

func (a *auth) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(r)
	if !ok {
		http.Error(w, "login and password are required", http.StatusBadRequest)
		return
	}

	userCode, hash, err := a.users.AuthLogin(r.Context(), creds.Login)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNoRows):
			http.Error(w, ErrLoginIncorrect.Error(), http.StatusUnauthorized)
		default:
			a.zaplog.Error("login failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)) != nil {
		http.Error(w, ErrLoginIncorrect.Error(), http.StatusUnauthorized)
		return
	}

	a.authorize(w, userCode)
}

// authorize выдаёт токен в куке и в заголовке Authorization
func (a *auth) authorize(w http.ResponseWriter, userCode string) {
	tokenString, err := a.token.BuildJWTString(userCode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieUserToken,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
	})
	w.Header().Set("Authorization", "Bearer "+tokenString)
	w.WriteHeader(http.StatusOK)
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение id пользователя
		userCode, err := a.getUserCode(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		// записываем
		r.Header.Set(HeaderUserCodeKey, userCode)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getUserCode(_ http.ResponseWriter, r *http.Request) (string, error) {
	// заголовок Authorization или куки пользователя
	var tokenString string
	if bearer := r.Header.Get("Authorization"); len(bearer) > len("Bearer ") && bearer[:len("Bearer ")] == "Bearer " {
		tokenString = bearer[len("Bearer "):]
	} else {
		tokenCookie, err := r.Cookie(cookieUserToken)
		if err != nil {
			return "", err
		}
		tokenString = tokenCookie.Value
	}
	return a.token.GetUserCode(tokenString)
}
