package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"beacon-relay/internal/batch"
	"beacon-relay/internal/capture"
	"beacon-relay/internal/config"
	"beacon-relay/internal/logger"
	"beacon-relay/internal/metrics"
	"beacon-relay/internal/server"
	"beacon-relay/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// CPU 설정 (컨테이너 vCPU 제한 대응)
	// ====================================================================
	//
	// 컨테이너 런타임은 vCPU 단위로 CPU share 를 제한하는데,
	// Go 런타임은 기본적으로 호스트의 모든 논리 코어를 GOMAXPROCS 로
	// 잡으려고 한다. share 가 1 미만인 환경에서 이대로 두면
	// busy-loop scheduling 으로 오히려 성능이 떨어진다.
	// → 운영에서는 GOMAXPROCS 를 vCPU 수에 맞춰 env 로 지정한다.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1) // default: 1 logical CPU
	}

	// ====================================================================
	// Config / Logger / Metrics 초기화
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	// 최종 반영된 옵션은 항상 남기는 마일스톤 — 배포 사고의 절반은
	// "설정이 생각과 달랐다"에서 시작한다.
	log.Info().
		Str("customer_id", cfg.CustomerID).
		Str("environment", cfg.Environment).
		Str("endpoint", cfg.EndpointURL).
		Int("max_batch_size", cfg.MaxBatchSize).
		Int64("max_batch_age_ms", cfg.MaxBatchAgeMs).
		Int("sampling_rate", cfg.SamplingRate).
		Bool("use_sessions", cfg.UseSessions).
		Bool("capture_own_events", cfg.CaptureOwnEvents).
		Bool("send_gzip", cfg.SendGzip).
		Interface("custom_tags", cfg.CustomTags).
		Msg("resolved options")

	// ====================================================================
	// 공유 상태 저장소 (Redis)
	// ====================================================================
	//
	// 큐/큐시작시각/seen-set 이 전부 여기 산다. 여러 replica 가
	// 같은 key 를 GET/SET 으로만 공유한다 — 락도 트랜잭션도 없다.
	// 기동 시 ping 으로 연결만 확인하고, 런타임 장애는 store 계층이
	// 기본값 fallback 으로 흡수한다.
	// ====================================================================
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable at startup, continuing (store falls back to defaults)")
	}
	cancel()

	st := store.New(rdb, m)

	// ====================================================================
	// 배치 엔진 조립
	// ====================================================================
	//
	//	관측 이벤트 → Builder → Deduplicator → Sampler → Manager → Transmitter
	//
	// 전부 동기 컴포넌트다. goroutine 파이프라인이 아니라
	// invocation(HTTP 요청) 하나가 끝까지 완주하는 모델.
	// ====================================================================
	tx := batch.NewTransmitter(cfg)
	mgr := batch.NewManager(cfg, m, st, tx)
	pipe := batch.NewPipeline(cfg, m, batch.NewBuilder(cfg), batch.NewDeduplicator(st), batch.NewSampler(), mgr)

	// 중계 메시지 구독 — 기동 시 한 번 등록되고, /relay 수신 시
	// 같은 invocation 안에서 동기 호출된다.
	bus := capture.NewBus()
	bus.Subscribe(capture.RelayMessageType, pipe.HandleRelay)

	// ====================================================================
	// HTTP Handler 설정
	// ====================================================================
	//
	// 엔드포인트:
	//  - /collect : 트래킹 이벤트 수집 (핵심)
	//  - /relay   : 타 컴포넌트 중계 메시지 수신
	//  - /metrics : 운영 지표 확인
	//  - /health  : LB Health check용
	// ====================================================================
	h := server.NewHandler(cfg, m, pipe, bus)

	mux := http.NewServeMux()
	mux.HandleFunc("/collect", h.HandleCollect)
	mux.HandleFunc("/relay", h.HandleRelay)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		// LB 는 단순 문자열로도 health 판단 가능
		w.Write([]byte("ok"))
	})

	// ====================================================================
	// HTTP 서버 설정 (Timeout 매우 중요)
	// ====================================================================
	//
	// WriteTimeout 은 collector 전송이 invocation 안에서 동기로 일어나는
	// 것을 감안해 SendTimeout 보다 넉넉해야 한다. 그렇지 않으면
	// 전송 대기 중에 서버가 응답 소켓을 먼저 닫아버린다.
	// ====================================================================
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  8 * time.Second,
		WriteTimeout: cfg.SendTimeout + 8*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	// SIGTERM 수신 시:
	//   1) HTTP 서버 먼저 멈추고 (진행 중 invocation 은 완주)
	//   2) Redis client 정리
	//
	// 멈출 worker goroutine 은 없다 — 모든 상태는 Redis 에 있으므로
	// 미전송 큐는 다음 replica 의 stale 체크가 이어받는다.
	// ====================================================================
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		cancel()

		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close")
		}
	}()

	// ====================================================================
	// 서버 시작
	// ====================================================================
	log.Info().Str("addr", cfg.HTTPAddr).Msg("relay server listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server terminated")
	}

	log.Info().Msg("shutdown complete")
}
