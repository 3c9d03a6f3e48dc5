package model

import (
	"time"

	"github.com/google/uuid"
)

type TargetKind string

const (
	TargetGroup TargetKind = "group"
	TargetUser  TargetKind = "user"
)

type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

type Credentials struct {
	AccessToken string `json:"-"`
}

// Notification is one firing: a formatted text and the recipients captured at
// decision time. Targets is owned by the notification and never shared.
type Notification struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Credentials Credentials `json:"-"`
	Targets     []Target    `json:"targets"`
	CreatedAt   time.Time   `json:"created_at"`
}

func NewNotification(text string, creds Credentials, targets []Target) *Notification {
	snapshot := make([]Target, len(targets))
	copy(snapshot, targets)
	return &Notification{
		ID:          uuid.New().String(),
		Text:        text,
		Credentials: creds,
		Targets:     snapshot,
		CreatedAt:   time.Now().UTC(),
	}
}

// PushResult is the outcome of pushing one notification to one target.
type PushResult struct {
	Target     Target `json:"target"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}
