package api

import "time"

type ContainerResponse struct {
	Object        string           `json:"object"`
	ID            string           `json:"id"`
	Path          string           `json:"path,omitempty"`
	Version       uint32           `json:"version"`
	FileSize      uint64           `json:"file_size"`
	Mapped        bool             `json:"mapped"`
	Metadata      PartitionSummary `json:"metadata"`
	InstFS        PartitionSummary `json:"instfs"`
	MetaTruncated bool             `json:"metadata_truncated,omitempty"`
	MountedAt     time.Time        `json:"mounted_at"`
}

type PartitionSummary struct {
	Offset  uint64 `json:"offset"`
	Size    uint64 `json:"size"`
	Entries int    `json:"entries"`
}

type InstrumentObject struct {
	Object     string `json:"object"`
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Size       uint64 `json:"size"`
	Format     uint32 `json:"format"`
	SampleRate uint32 `json:"sample_rate"`
	Channels   uint16 `json:"channels"`
	BitDepth   uint16 `json:"bit_depth"`
}

type MetaFileObject struct {
	Object string `json:"object"`
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Size   uint64 `json:"size"`
}

type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
