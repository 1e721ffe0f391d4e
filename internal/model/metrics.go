package model

import "time"

// CountEntry is one row of a ranked count series.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CostEntry is one row of a ranked cost series.
type CostEntry struct {
	Key  string  `json:"key"`
	Cost float64 `json:"cost"`
}

// CountWindows holds a ranked count series for the all-time and trailing windows.
type CountWindows struct {
	All     []CountEntry `json:"all"`
	Last1d  []CountEntry `json:"last_1d"`
	Last7d  []CountEntry `json:"last_7d"`
	Last30d []CountEntry `json:"last_30d"`
}

// CostWindows holds a ranked cost series for the all-time and trailing windows.
type CostWindows struct {
	All     []CostEntry `json:"all"`
	Last1d  []CostEntry `json:"last_1d"`
	Last7d  []CostEntry `json:"last_7d"`
	Last30d []CostEntry `json:"last_30d"`
}

// TimelinePoint holds activity for one day, week or month bucket.
type TimelinePoint struct {
	Key             string `json:"key"`
	Sessions        int    `json:"sessions"`
	DirectActions   int    `json:"direct_actions"`
	SubagentActions int    `json:"subagent_actions"`
	ActiveMs        int64  `json:"active_ms"`
}

// GlobalAggregate is the precomputed overview across all cached sessions.
type GlobalAggregate struct {
	GeneratedAt time.Time `json:"generated_at"`

	TotalSessions    int         `json:"total_sessions"`
	TotalTools       int         `json:"total_tools"`
	TotalActions     int         `json:"total_actions"`
	TotalCost        float64     `json:"total_cost"`
	Tokens           TokenCounts `json:"tokens"`
	TotalActiveMs    int64       `json:"total_active_ms"`
	ProjectCount     int         `json:"project_count"`
	SubagentCount    int         `json:"subagent_count"`
	SubagentTools    int         `json:"subagent_tools"`
	FirstSessionTime time.Time   `json:"first_session_time,omitzero"`
	LastSessionTime  time.Time   `json:"last_session_time,omitzero"`
	Projects         []string    `json:"projects"`

	Tools        CountWindows `json:"tools"`
	ProjectsRank CountWindows `json:"projects_rank"`
	FileTypes    CountWindows `json:"file_types"`
	ProjectCosts CostWindows  `json:"project_costs"`

	Daily   []TimelinePoint `json:"daily"`
	Weekly  []TimelinePoint `json:"weekly"`
	Monthly []TimelinePoint `json:"monthly"`
}
