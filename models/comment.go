package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/glrecon_backend/store"
)

type Comment struct {
	Author   string    `json:"author"`
	Text     string    `json:"text"`
	PostedAt time.Time `json:"postedAt"`
}

type NewComment struct {
	Text string `json:"text" binding:"required" validate:"required,max=4000"`
}

func (c NewComment) Trimmed() string {
	return strings.TrimSpace(c.Text)
}

// CommentFromSublist prefers the store-assigned timestamp.
func CommentFromSublist(e store.SublistEntry) Comment {
	var c Comment
	_ = DecodeInto(e.Doc, &c)
	c.PostedAt = e.PostedAt
	return c
}
