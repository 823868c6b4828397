package core

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/mini-server/core/pools"
)

// Stats is a point-in-time snapshot of the server and the pools it runs on.
type Stats struct {
	Server ServerStats           `json:"server"`
	Pool   pools.WorkerPoolStats `json:"pool"`
	Bufio  pools.BufioStats      `json:"bufio"`
}

// ServerStats counts connection-level events.
type ServerStats struct {
	Accepted        uint64 `json:"accepted"`
	Active          int    `json:"active"`
	Served          uint64 `json:"served"`
	ParseFailures   uint64 `json:"parse_failures"`
	HandlerFailures uint64 `json:"handler_failures"`
	WriteFailures   uint64 `json:"write_failures"`
}

// GetStats returns statistics for the server and its pools
func (s *Server) GetStats() Stats {
	return Stats{
		Server: ServerStats{
			Accepted:        s.stats.accepted.Load(),
			Active:          s.conns.Size(),
			Served:          s.stats.served.Load(),
			ParseFailures:   s.stats.parseFailures.Load(),
			HandlerFailures: s.stats.handlerFailures.Load(),
			WriteFailures:   s.stats.writeFailures.Load(),
		},
		Pool:  s.pool.Stats(),
		Bufio: s.bufs.Stats(),
	}
}

// GetStatsJSON returns statistics as JSON string
func (s *Server) GetStatsJSON() string {
	data, _ := json.MarshalIndent(s.GetStats(), "", "  ")
	return string(data)
}

// GetStatsText returns statistics as human-readable text
func (s *Server) GetStatsText() string {
	st := s.GetStats()
	return fmt.Sprintf(`Server Statistics
=================

Connections:
  Accepted:         %d
  Active:           %d
  Requests Served:  %d
  Parse Failures:   %d
  Handler Failures: %d
  Write Failures:   %d

Worker Pool:
  Workers:   %d (idle %d, busy %d)
  Queued:    %d
  Submitted: %d
  Completed: %d
  Panicked:  %d

Buffers:
  Gets:     %d
  Allocs:   %d
  Hit Rate: %.2f%%
`,
		st.Server.Accepted, st.Server.Active, st.Server.Served,
		st.Server.ParseFailures, st.Server.HandlerFailures, st.Server.WriteFailures,
		st.Pool.NumWorkers, st.Pool.Idle, st.Pool.Busy, st.Pool.Queued,
		st.Pool.TasksSubmitted, st.Pool.TasksCompleted, st.Pool.TasksPanicked,
		st.Bufio.Gets, st.Bufio.Allocs, st.Bufio.HitRate*100,
	)
}

// Proto converts the snapshot into a protobuf Struct, for protojson output.
func (st Stats) Proto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"server": map[string]any{
			"accepted":         st.Server.Accepted,
			"active":           st.Server.Active,
			"served":           st.Server.Served,
			"parse_failures":   st.Server.ParseFailures,
			"handler_failures": st.Server.HandlerFailures,
			"write_failures":   st.Server.WriteFailures,
		},
		"pool": map[string]any{
			"workers":         st.Pool.NumWorkers,
			"idle":            st.Pool.Idle,
			"busy":            st.Pool.Busy,
			"terminated":      st.Pool.Terminated,
			"queue_capacity":  st.Pool.QueueCapacity,
			"queued":          st.Pool.Queued,
			"tasks_submitted": st.Pool.TasksSubmitted,
			"tasks_completed": st.Pool.TasksCompleted,
			"tasks_panicked":  st.Pool.TasksPanicked,
			"tasks_pending":   st.Pool.TasksPending,
		},
		"bufio": map[string]any{
			"gets":     st.Bufio.Gets,
			"allocs":   st.Bufio.Allocs,
			"hit_rate": st.Bufio.HitRate,
		},
	})
}
