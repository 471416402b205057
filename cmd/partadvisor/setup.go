package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/partadvisor/pkg/config"
	"github.com/kasuganosora/partadvisor/pkg/connector"
	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/kasuganosora/partadvisor/pkg/logger"
	"github.com/kasuganosora/partadvisor/pkg/snapshot"
	"github.com/kasuganosora/partadvisor/pkg/statistics"
	"github.com/kasuganosora/partadvisor/pkg/workload"
)

// snapshotFlags --record / --replay 覆盖配置中的快照设置
type snapshotFlags struct {
	record string
	replay string
}

func (f snapshotFlags) apply(cfg *config.Config) error {
	switch {
	case f.record != "" && f.replay != "":
		return fmt.Errorf("--record 与 --replay 不能同时使用")
	case f.record != "":
		cfg.Snapshot.Mode = config.SnapshotRecord
		cfg.Snapshot.Path = f.record
	case f.replay != "":
		cfg.Snapshot.Mode = config.SnapshotReplay
		cfg.Snapshot.Path = f.replay
	}
	return cfg.Validate()
}

// backend 一次运行使用的连接器与共享百分位
type backend struct {
	conn   connector.Connector
	shared *statistics.SharedStore
}

// openBackend 按快照模式打开连接器
// 回放时共享存储直接取快照中的全部百分位；否则按配置预取候选列
func openBackend(ctx context.Context, cfg *config.Config, partitions []*domain.Partition, log logger.Logger) (*backend, error) {
	mode := strings.ToLower(cfg.Snapshot.Mode)

	if mode == config.SnapshotReplay {
		store, err := snapshot.Open(cfg.Snapshot, log)
		if err != nil {
			return nil, err
		}
		recorded, err := store.Percentiles(ctx)
		if err != nil {
			store.Close()
			return nil, err
		}
		shared, err := statistics.NewSharedStore(recorded)
		if err != nil {
			store.Close()
			return nil, err
		}
		log.Info("回放快照 %s，%d 列百分位", cfg.Snapshot.Path, shared.Len())
		return &backend{conn: snapshot.NewReplayConnector(store, log), shared: shared}, nil
	}

	live, err := connector.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	var conn connector.Connector = live
	if mode == config.SnapshotRecord {
		store, err := snapshot.Open(cfg.Snapshot, log)
		if err != nil {
			live.Close()
			return nil, err
		}
		log.Info("记录快照到 %s", cfg.Snapshot.Path)
		conn = snapshot.NewRecordingConnector(live, store, log)
	}

	b := &backend{conn: conn}
	if cfg.Estimator.PreloadStatistics && len(partitions) > 0 {
		columns := workload.DistinctColumns(partitions)
		// 连接池有多少连接就并发多少个百分位请求
		if b.shared, err = statistics.LoadSharedStore(ctx, conn, columns, cfg.Database.MaxOpenConns); err != nil {
			conn.Close()
			return nil, err
		}
		log.Info("预取 %d 列百分位", b.shared.Len())
	}
	return b, nil
}
