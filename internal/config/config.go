// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Version
// 이 릴레이 프로세스(컨테이너)의 버전 식별자.
// 배포 메타데이터(common.context)와 파생 태그(container_version)에 실린다.
const Version = "1.2.0"

// DefaultCollectorURL 은 endpoint 미지정 시 사용하는 기본 collector 주소.
const DefaultCollectorURL = "https://collect.beaconrelay.net/v1/"

// Config
//
// 서비스 실행 시 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
// 요청 처리 중에는 절대 전역 조회를 하지 않고, 이 값을 참조로만 전달한다.
type Config struct {

	// ---------------------------
	// 수집 파이프라인 옵션
	// ---------------------------

	CustomerID   string // collector 테넌트 식별자 (필수)
	Environment  string // 배포 환경 태그 (기본 "PRODUCTION")
	EndpointURL  string // collector 엔드포인트 (기본 DefaultCollectorURL)
	MaxBatchSize int    // 배치 크기 (N개 모이면 즉시 전송, 기본 1)

	// MaxBatchAgeMs: 첫 레코드 적재 후 이 시간이 지나면 크기와 무관하게
	// 배치가 전송 대상이 된다. env 는 초 단위(BATCH_AGE_SECONDS)로 받고
	// 내부에서는 ms 로만 다룬다.
	MaxBatchAgeMs int64

	SamplingRate int // 1-in-N 샘플링 (기본 1 = 전량 수집)

	CustomTags map[string]string // "k=v,k2=v2" 형식, 빈 key 항목은 버림

	UseSessions      bool // 방문자 세션 쿠키 발급/연장 여부
	CaptureOwnEvents bool // SYSTEM_EVENT 수집 경로 on/off (relay 는 무관)
	VerboseLogging   bool // debug 레벨 진단 로그 활성화

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	InstanceID  string        // relay 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string        // HTTP 서버 bind 주소 (예: ":8080")
	MaxBodySize int64         // 단일 HTTP 요청 body 최대 크기 (바이트)
	SendTimeout time.Duration // collector POST 1회당 timeout
	SendGzip    bool          // 전송 body 를 gzip(Content-Encoding) 으로 압축할지

	// ---------------------------
	// 외부 상태 저장소 (Redis)
	// ---------------------------
	//
	// 큐/큐시작시각/중복제거 seen-set 이 전부 여기 산다.
	// 여러 replica 가 같은 key 를 동시에 읽고 쓰며, 단일 key GET/SET
	// 원자성만 가정한다 (트랜잭션/CAS/락 없음 — 프로토콜 설계 전제).

	RedisAddr string // 예: "127.0.0.1:6379"

	// ---------------------------
	// 로깅
	// ---------------------------

	ServiceName string // 로그 공통 필드 service
	LogLevel    string // zerolog 레벨 문자열 (기본 "info")
	LogPretty   bool   // 개발용 콘솔 출력 여부
	LogSampleN  uint32 // Debug/Info 1/N 샘플링 (0 또는 1 이면 비활성)
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// CUSTOMER_ID 는 필수이며 비어있으면 즉시 프로세스를 종료(fail-fast).
// 나머지는 전부 기본값을 가진다.
func Load() Config {
	return Config{
		CustomerID:   must("CUSTOMER_ID"),
		Environment:  env("ENVIRONMENT", "PRODUCTION"),
		EndpointURL:  env("ENDPOINT_URL", DefaultCollectorURL),
		MaxBatchSize: envPosInt("MAX_BATCH_SIZE", 1),

		MaxBatchAgeMs: int64(envPosInt("BATCH_AGE_SECONDS", 5)) * 1000,

		SamplingRate: envPosInt("SAMPLING_RATE", 1),
		CustomTags:   parseTags(env("CUSTOM_TAGS", "")),

		UseSessions:      envBool("USE_SESSIONS", false),
		CaptureOwnEvents: envBool("CAPTURE_OWN_EVENTS", true),
		VerboseLogging:   envBool("VERBOSE_LOGGING", false),

		InstanceID:  fallbackInstanceID(),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MaxBodySize: envInt64("MAX_BODY_SIZE", 64*1024),
		SendTimeout: envDur("SEND_TIMEOUT", 5*time.Second),
		SendGzip:    envBool("SEND_GZIP", false),

		RedisAddr: env("REDIS_ADDR", "127.0.0.1:6379"),

		ServiceName: env("SERVICE_NAME", "beacon-relay"),
		LogLevel:    env("LOG_LEVEL", "info"),
		LogPretty:   envBool("LOG_PRETTY", false),
		LogSampleN:  uint32(envInt64("LOG_SAMPLE_N", 0)),
	}
}

// must / env / envPosInt / envInt64 / envBool / envDur
//
// 공통 패턴.
// 필수 환경변수가 없거나 형식이 잘못되면 즉시 로그 출력 후 종료(fail-fast).
// 런타임 중 설정 오류를 겪지 않도록 하기 위한 보호 전략.
// 선택 값들은 미설정 시 기본값을 쓰되, 설정되어 있는데 형식이 틀리면
// 조용히 기본값으로 덮지 않고 역시 fail-fast 한다.
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envPosInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Fatalf("invalid positive int env %s=%q", key, v)
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

// parseTags
//
// "team=growth,region=apac" → map[string]string.
// 빈 key 항목은 버린다. 값은 빈 문자열 허용.
func parseTags(s string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		tags[k] = strings.TrimSpace(v)
	}
	return tags
}

// fallbackInstanceID
//
// 이 relay 프로세스 인스턴스를 식별하는 고유 값.
//   - 기본: hostname (컨테이너 환경에서는 task-id 형태로 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	// 랜덤 6바이트 → 12자리 hex
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
