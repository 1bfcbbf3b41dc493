package tracker

import (
	"errors"
	"time"

	"github.com/BaSui01/img3d/threed"
)

// Kind 错误分类
type Kind string

const (
	KindNone       Kind = ""
	KindEncoding   Kind = "encoding_failed"
	KindSubmission Kind = "submission_failed"
	KindPoll       Kind = "poll_failed"
	KindUpstream   Kind = "upstream_failed"
	KindTimeout    Kind = "timeout"
)

// 面向用户的固定错误文案
const (
	MsgEncodingFailed   = "Failed to read image"
	MsgSubmissionFailed = "Failed to start conversion"
	MsgPollFailed       = "Failed to check status"
	MsgConversionFailed = "Conversion failed"
	MsgTimedOut         = "Conversion timed out"
)

// Outcome 一次转换流程的结束原因，用于指标与日志
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeFailed           Outcome = "failed"
	OutcomeEncodingFailed   Outcome = "encoding_failed"
	OutcomeSubmissionFailed Outcome = "submission_failed"
	OutcomePollFailed       Outcome = "poll_failed"
	OutcomeTimeout          Outcome = "timeout"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeSuperseded       Outcome = "superseded"
)

var (
	// ErrClosed tracker 已关闭
	ErrClosed = errors.New("tracker: closed")

	// errDeadline 作为整体截止时间触发时的 context cause
	errDeadline = errors.New("tracker: conversion deadline exceeded")
)

// State 是 tracker 的可观察状态。通过 Tracker.State 或订阅获得的都是只读副本。
type State struct {
	IsConverting bool                   `json:"isConverting"`
	CurrentTask  *threed.ConversionTask `json:"currentTask,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ErrorKind    Kind                   `json:"errorKind,omitempty"`
	Generation   uint64                 `json:"generation"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	s.CurrentTask = s.CurrentTask.Clone()
	return s
}

// Terminal reports whether the attempt has settled: not converting and either
// a terminal task or an error is present.
func (s State) Terminal() bool {
	if s.IsConverting {
		return false
	}
	return s.Error != "" || (s.CurrentTask != nil && s.CurrentTask.Status.IsTerminal())
}

// statusRank 用于保证状态只能前进
func statusRank(s threed.Status) int {
	switch s {
	case threed.StatusPending:
		return 0
	case threed.StatusInProgress:
		return 1
	case threed.StatusSucceeded, threed.StatusFailed:
		return 2
	default:
		return 0
	}
}
