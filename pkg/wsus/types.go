// pkg/wsus/types.go - data model for the update catalog snapshot.

package wsus

import (
	"time"
)

// PublicationState is the lifecycle flag the update service stamps on an update.
type PublicationState string

const (
	PublicationActive  PublicationState = "Active"
	PublicationExpired PublicationState = "Expired"
)

// ApprovalAction is the directive recorded against an update for a target group.
type ApprovalAction string

const (
	ActionInstall     ApprovalAction = "Install"
	ActionUninstall   ApprovalAction = "Uninstall"
	ActionNotApproved ApprovalAction = "NotApproved"
	ActionDecline     ApprovalAction = "Decline"
)

// InstallationState is the per-update, per-group rollout state reported by the
// update service.
type InstallationState string

const (
	StateInstalled     InstallationState = "Installed"
	StateNotApplicable InstallationState = "NotApplicable"
	StateDownloaded    InstallationState = "Downloaded"
	StateNotInstalled  InstallationState = "NotInstalled"
	StatePending       InstallationState = "InstalledPendingReboot"
	StateFailed        InstallationState = "Failed"
	StateUnknown       InstallationState = "Unknown"
)

// Update is one entry in the update catalog. IDs are the stable GUIDs the
// update service assigns; see ValidateID.
type Update struct {
	ID                   string           `yaml:"id" json:"id"`
	Title                string           `yaml:"title" json:"title"`
	Products             []string         `yaml:"products" json:"products"`
	Classification       string           `yaml:"classification" json:"classification"`
	KBArticles           []string         `yaml:"kb_articles,omitempty" json:"kb_articles,omitempty"`
	SupportURLs          []string         `yaml:"support_urls,omitempty" json:"support_urls,omitempty"`
	CreationDate         time.Time        `yaml:"creation_date" json:"creation_date"`
	ArrivalDate          time.Time        `yaml:"arrival_date" json:"arrival_date"`
	PublicationState     PublicationState `yaml:"publication_state" json:"publication_state"`
	IsSuperseded         bool             `yaml:"is_superseded" json:"is_superseded"`
	HasSupersededUpdates bool             `yaml:"has_superseded_updates" json:"has_superseded_updates"`
	IsDeclined           bool             `yaml:"is_declined" json:"is_declined"`
	IsApproved           bool             `yaml:"is_approved" json:"is_approved"`
	HasEarlierRevision   bool             `yaml:"has_earlier_revision" json:"has_earlier_revision"`
	IsLatestRevision     bool             `yaml:"is_latest_revision" json:"is_latest_revision"`
}

// Approval is one entry in an update's approval history.
type Approval struct {
	UpdateID     string         `yaml:"update_id" json:"update_id"`
	Action       ApprovalAction `yaml:"action" json:"action"`
	CreationDate time.Time      `yaml:"creation_date" json:"creation_date"`
	GroupID      string         `yaml:"group_id" json:"group_id"`
}

// SyncEvent records one synchronization run of the catalog against its
// upstream source.
type SyncEvent struct {
	StartTime time.Time `yaml:"start_time" json:"start_time"`
	EndTime   time.Time `yaml:"end_time" json:"end_time"`
	Result    string    `yaml:"result" json:"result"`
}

// Group is a named target group of endpoints.
type Group struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Endpoint is a managed device as the update service knows it.
type Endpoint struct {
	Name string `yaml:"name" json:"name"`
}

// InstallationSummary carries the per-endpoint update counts the service
// reports. A nil summary means the endpoint has not reported status.
type InstallationSummary struct {
	Failed                 int `yaml:"failed" json:"failed"`
	NotInstalled           int `yaml:"not_installed" json:"not_installed"`
	Downloaded             int `yaml:"downloaded" json:"downloaded"`
	InstalledPendingReboot int `yaml:"installed_pending_reboot" json:"installed_pending_reboot"`
	Installed              int `yaml:"installed" json:"installed"`
}

// WasApproved reports whether any entry in history is an Install approval,
// regardless of when it was created.
func WasApproved(history []Approval) bool {
	for _, a := range history {
		if a.Action == ActionInstall {
			return true
		}
	}
	return false
}

// ApprovedSince reports whether history contains an Install approval created
// on or after the given time.
func ApprovedSince(history []Approval, since time.Time) bool {
	for _, a := range history {
		if a.Action == ActionInstall && !a.CreationDate.Before(since) {
			return true
		}
	}
	return false
}
