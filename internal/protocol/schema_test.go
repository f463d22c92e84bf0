package protocol

import (
	"errors"
	"testing"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
)

func TestDecodeRequest(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		raw := []byte(`{
			"action": "saveData",
			"version": "pro",
			"data": {
				"collectedUsers": ["u1"],
				"savedUserList": [{"userId": "u1", "username": "alice", "timestamp": 1700000000000}]
			}
		}`)

		req, err := DecodeRequest(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Action != ActionSaveData || req.Version != models.VersionPro {
			t.Errorf("unexpected request %+v", req)
		}
		if req.Data == nil || req.Data.Len() != 1 || req.Data.SavedUserList[0].Timestamp != 1700000000000 {
			t.Errorf("unexpected data %+v", req.Data)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		tc := []struct {
			name string
			raw  string
		}{
			{"not json", `{`},
			{"missing action", `{"version":"basic"}`},
			{"unknown action", `{"action":"dance"}`},
			{"unknown version", `{"action":"getSavedData","version":"gold"}`},
			{"saveData without data", `{"action":"saveData"}`},
			{"record field wrong type", `{"action":"saveData","data":{"savedUserList":[{"userId":7}]}}`},
			{"progress out of range", `{"action":"updateProgress","progress":101}`},
			{"downloadTXT without url", `{"action":"downloadTXT","filename":"a.txt"}`},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := DecodeRequest([]byte(tt.raw)); !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})
		}
	})
}
