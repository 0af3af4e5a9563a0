package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/loginbridge/loginbridge/internal/config"
	"github.com/loginbridge/loginbridge/internal/store"
	"github.com/loginbridge/loginbridge/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// CredentialSummary describes a saved credential without exposing its secrets.
type CredentialSummary struct {
	ID          string
	Email       string
	CreatedTime string
	AccessToken string
	HasRefresh  bool
}

// ListCredentials reads the credentials saved in the auth directory. Records that are
// not valid JSON are skipped with a warning.
func ListCredentials(ctx context.Context, cfg *config.Config) ([]CredentialSummary, error) {
	if cfg == nil {
		return nil, fmt.Errorf("list: configuration is nil")
	}
	if t := strings.ToLower(strings.TrimSpace(cfg.Store.Type)); t != "" && t != "file" {
		return nil, fmt.Errorf("list: only the file store can be listed, configured store is %q", cfg.Store.Type)
	}
	fileStore, err := store.NewFileStore(cfg.AuthDir)
	if err != nil {
		return nil, err
	}
	ids, err := fileStore.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]CredentialSummary, 0, len(ids))
	for _, id := range ids {
		data, errLoad := fileStore.Load(ctx, id)
		if errLoad != nil {
			log.Warnf("skipping credential %s: %v", id, errLoad)
			continue
		}
		if !gjson.ValidBytes(data) {
			log.Warnf("skipping credential %s: invalid JSON", id)
			continue
		}
		fields := gjson.GetManyBytes(data, "email", "created_time", "access_token", "refresh_token")
		summaries = append(summaries, CredentialSummary{
			ID:          id,
			Email:       fields[0].String(),
			CreatedTime: fields[1].String(),
			AccessToken: util.MaskToken(fields[2].String()),
			HasRefresh:  fields[3].String() != "",
		})
	}
	return summaries, nil
}

// DoListCredentials prints the saved credentials.
func DoListCredentials(ctx context.Context, cfg *config.Config) error {
	summaries, err := ListCredentials(ctx, cfg)
	if err != nil {
		log.Errorf("failed to list credentials: %v", err)
		return err
	}
	if len(summaries) == 0 {
		fmt.Printf("No saved credentials in %s\n", cfg.AuthDir)
		return nil
	}
	for _, s := range summaries {
		email := s.Email
		if email == "" {
			email = "(no email)"
		}
		fmt.Printf("%s  %s  created %s  access %s  refresh %t\n", s.ID, email, s.CreatedTime, s.AccessToken, s.HasRefresh)
	}
	return nil
}
