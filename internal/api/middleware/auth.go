package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"trader/pkg/crypto"
)

// operatorUser и operatorHash защищают управляющие endpoints
// (halt, resume, переопределения уровней риска).
// Загружаются из OPERATOR_USER и OPERATOR_PASSWORD_HASH: в БД и
// окружении хранится только bcrypt hash, не пароль
var (
	operatorUser = os.Getenv("OPERATOR_USER")
	operatorHash = os.Getenv("OPERATOR_PASSWORD_HASH")
)

// OperatorAuth - middleware для защиты управляющих endpoints
//
// Использует HTTP Basic Authentication с bcrypt проверкой пароля.
// Если credentials не настроены, доступ разрешен только в development
// (ENV=development или пустой ENV), иначе 403
func OperatorAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if operatorUser == "" || operatorHash == "" {
			if env := os.Getenv("ENV"); env == "development" || env == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Operator endpoints disabled. Set OPERATOR_USER and OPERATOR_PASSWORD_HASH.", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Operator endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Constant-time сравнение имени, bcrypt сравнение пароля
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(operatorUser)) == 1
		passMatch := crypto.CheckPasswordMatch(pass, operatorHash)

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Operator endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
