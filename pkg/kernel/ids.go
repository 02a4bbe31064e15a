package kernel

import "github.com/google/uuid"

type FlowID string

func NewFlowID(id string) FlowID { return FlowID(id) }
func (f FlowID) String() string  { return string(f) }
func (f FlowID) IsEmpty() bool   { return string(f) == "" }

// DialogID identifies a conversation on the messaging platform (e.g. "chat123" or a user id).
type DialogID string

func NewDialogID(id string) DialogID { return DialogID(id) }
func (d DialogID) String() string    { return string(d) }
func (d DialogID) IsEmpty() bool     { return string(d) == "" }

type RunID string

func NewRunID() RunID          { return RunID(uuid.New().String()) }
func (r RunID) String() string { return string(r) }
func (r RunID) IsEmpty() bool  { return string(r) == "" }

type CheckpointID string

func NewCheckpointID() CheckpointID   { return CheckpointID(uuid.New().String()) }
func (c CheckpointID) String() string { return string(c) }
func (c CheckpointID) IsEmpty() bool  { return string(c) == "" }
