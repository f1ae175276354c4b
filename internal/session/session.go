// internal/session/session.go
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ------------------------------------------------------------
// Session Manager
//
// 방문자 단위 세션 식별자의 쿠키 생애주기를 관리한다.
// 배치 결정에는 전혀 관여하지 않고, 전송 payload 의 session_id 로만
// 쓰인다 (순수 additive).
//
// 생애주기:
//   - 쿠키 있음 → 같은 값 그대로, 만료만 30분 연장해 재발급 (sliding)
//   - 쿠키 없음 → UUIDv4 새로 발급 + 30분 만료 쿠키 설정
//   - 30분 무활동 → 쿠키가 브라우저에서 만료되어 다음 관측 때 새 id
// ------------------------------------------------------------

// CookieName 은 세션 쿠키의 고정 이름.
const CookieName = "_br_sid"

// TTL 은 sliding 만료 윈도우.
const TTL = 30 * time.Minute

// CurrentSessionID 는 현재 요청의 세션 식별자를 돌려주고,
// 매 관측마다 만료를 새로 연장한 쿠키를 재발급한다.
func CurrentSessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		issue(w, c.Value)
		return c.Value
	}

	id := uuid.NewString()
	issue(w, id)
	return id
}

// issue 는 세션 쿠키를 설정한다. script 접근 불가(HttpOnly),
// HTTPS 전용(Secure).
func issue(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(TTL.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
