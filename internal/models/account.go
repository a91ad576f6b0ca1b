package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Environment variable names understood by the launched client
const (
	EnvCharacterID  = "JX_CHARACTER_ID"
	EnvSessionID    = "JX_SESSION_ID"
	EnvDisplayName  = "JX_DISPLAY_NAME"
	EnvRefreshToken = "JX_REFRESH_TOKEN"
	EnvAccessToken  = "JX_ACCESS_TOKEN"
)

// WorkItem carries the launch parameters for one account. The controller
// forwards it to a worker unchanged.
type WorkItem struct {
	CharacterID  string `json:"JX_CHARACTER_ID"`
	SessionID    string `json:"JX_SESSION_ID"`
	DisplayName  string `json:"JX_DISPLAY_NAME"`
	RefreshToken string `json:"JX_REFRESH_TOKEN,omitempty"`
	AccessToken  string `json:"JX_ACCESS_TOKEN,omitempty"`
}

// MissingFields lists the required fields that are empty
func (w WorkItem) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(w.CharacterID) == "" {
		missing = append(missing, EnvCharacterID)
	}
	if strings.TrimSpace(w.SessionID) == "" {
		missing = append(missing, EnvSessionID)
	}
	if strings.TrimSpace(w.DisplayName) == "" {
		missing = append(missing, EnvDisplayName)
	}
	return missing
}

// Validate rejects work items the launcher cannot use
func (w WorkItem) Validate() error {
	if missing := w.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: incomplete account data, missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Env returns the work item as KEY=value pairs. Optional fields are
// always present so a stale token from the parent environment never leaks
// into the child.
func (w WorkItem) Env() []string {
	return []string{
		EnvCharacterID + "=" + w.CharacterID,
		EnvSessionID + "=" + w.SessionID,
		EnvDisplayName + "=" + w.DisplayName,
		EnvRefreshToken + "=" + w.RefreshToken,
		EnvAccessToken + "=" + w.AccessToken,
	}
}

// Account is a stored credential set keyed by nickname
type Account struct {
	Nickname string `json:"nickname"`
	WorkItem
}

// Validate checks that the account can be stored
func (a Account) Validate() error {
	if strings.TrimSpace(a.Nickname) == "" {
		return fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	return nil
}

// UpdateAccountRequest renames and/or updates an existing account
type UpdateAccountRequest struct {
	OriginalNickname string `json:"originalNickname"`
	Account
}

// Validate checks the update payload
func (r UpdateAccountRequest) Validate() error {
	if strings.TrimSpace(r.OriginalNickname) == "" || strings.TrimSpace(r.Nickname) == "" {
		return fmt.Errorf("%w: both original and new nicknames are required", ErrValidation)
	}
	return nil
}

// DeleteAccountRequest names the account to delete
type DeleteAccountRequest struct {
	Nickname string `json:"nickname"`
}

// LegacyAccounts is the accounts.json layout: nickname -> fields
type LegacyAccounts map[string]WorkItem

// ParseLegacyAccounts decodes an accounts.json document
func ParseLegacyAccounts(data []byte) ([]Account, error) {
	var legacy LegacyAccounts
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("%w: invalid accounts file: %v", ErrValidation, err)
	}

	accounts := make([]Account, 0, len(legacy))
	for nickname, item := range legacy {
		accounts = append(accounts, Account{Nickname: nickname, WorkItem: item})
	}
	return accounts, nil
}
