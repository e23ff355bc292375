// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 無効化済みセッションは監査証跡として保持し、有効期限を超過した
// セッション行のみを定期バッチで物理削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションの削除を抽象化するインターフェース。
// repository.SessionRepository がこれを満たす。
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeMetrics は削除件数のメトリクス記録インターフェース。
type PurgeMetrics interface {
	RecordSessionsPurged(count int64)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// セッションの有効性判定はDELETE実行時点の有効期限に基づくため、
// このジョブの実行遅延が認可判定に影響することはない。
type CleanupJob struct {
	sessions SessionPurger
	metrics  PurgeMetrics
	logger   *slog.Logger
	Interval time.Duration // 実行間隔（デフォルト: 1時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。metricsはnilを許容する。
// デフォルトの実行間隔は1時間。
func NewCleanupJob(sessions SessionPurger, metrics PurgeMetrics, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		Interval: time.Hour,
	}
}

// Run は有効期限を超過したセッション行を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	purgedCount, err := j.sessions.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsPurged(purgedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("purged_count", purgedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// RunLoop はIntervalごとにRunを繰り返し実行する。
// ctxのキャンセルで停止する。起動直後にも一度実行する。
func (j *CleanupJob) RunLoop(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("initial cleanup run failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup run failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			j.logger.Info("session cleanup loop stopped")
			return
		}
	}
}
