// Maintenance CLI: prompts for operator credentials and performs a single
// claim action in-process, without going through the HTTP server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wikicampus/wikicampus/internal/logging"
	"github.com/wikicampus/wikicampus/internal/server/actions"
	"github.com/wikicampus/wikicampus/internal/server/config"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
	"github.com/wikicampus/wikicampus/internal/server/sessioncache"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

func main() {

	kind := flag.String("kind", "create", "action kind: create, update, or remove")
	entity := flag.String("entity", "", "target entity id (Q…)")
	property := flag.String("property", "", "property id (P…)")
	value := flag.String("value", "", "claim value")
	oldValue := flag.String("old-value", "", "current claim value (update)")
	guid := flag.String("guid", "", "statement GUID (remove)")
	flag.Parse()

	cfg := &config.Config{}
	cfg.LoadDefaults()

	cred, err := promptCredential()
	if err != nil {
		log.Fatalf("%v", err)
	}

	action, err := buildAction(*kind, *entity, *property, *value, *oldValue, *guid)
	if err != nil {
		log.Fatalf("%v", err)
	}

	editing := sessioncache.New("editing", func(ctx context.Context, cred permissions.Credential) (wikibase.EditingService, error) {
		return wikibase.NewEditing(ctx, remoteSession(cfg, cred))
	})
	query := sessioncache.New("query", func(ctx context.Context, cred permissions.Credential) (wikibase.QueryService, error) {
		return wikibase.NewQuery(remoteSession(cfg, cred)), nil
	})

	exec := actions.NewExecutor(editing, query, audit.NewInMemoryRepository(), logging.NewDefault())

	confirmation, err := exec.Execute(context.Background(), action, cred, actions.Attribution{})
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(confirmation)

}

func promptCredential() (permissions.Credential, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Enter user name")
	username, err := reader.ReadString('\n')
	if err != nil {
		return permissions.Credential{}, err
	}

	fmt.Println("Enter password")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return permissions.Credential{}, err
	}

	return permissions.Credential{
		Username: strings.TrimSpace(username),
		Password: string(password),
	}, nil
}

func buildAction(kind, entity, property, value, oldValue, guid string) (actions.Action, error) {
	switch kind {
	case "create":
		return actions.Create{EntityID: entity, Property: property, Value: value}, nil
	case "update":
		return actions.Update{EntityID: entity, Property: property, OldValue: oldValue, NewValue: value}, nil
	case "remove":
		return actions.Remove{GUID: guid, EntityID: entity, Property: property, Value: value}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}

func remoteSession(cfg *config.Config, cred permissions.Credential) wikibase.Session {
	return wikibase.Session{
		InstanceURL:    cfg.InstanceURL,
		SPARQLEndpoint: cfg.SPARQLEndpoint,
		Username:       cred.Username,
		Password:       cred.Password,
		UserAgent:      cfg.UserAgent,
		MaxLag:         cfg.MaxLag,
	}
}
