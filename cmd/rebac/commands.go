package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/store"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func runCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subjectType := fs.String("subject-type", "user", "subject type")
	subjectID := fs.String("subject-id", "", "subject id (required)")
	action := fs.String("action", "", "action name (required)")
	objectType := fs.String("object-type", "", "object type (required)")
	objectID := fs.String("object-id", "", "object id (required)")
	jsonOut := fs.Bool("json", false, "output result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *subjectID == "" || *action == "" || *objectType == "" || *objectID == "" {
		fmt.Fprintln(stderr, "check: --subject-id, --action, --object-type, --object-id are required")
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	who := model.Subject{Type: *subjectType, ID: *subjectID}
	onWhat := model.Object{Type: *objectType, ID: *objectID}
	allowed, err := engine.Check(ctx, who, model.Action(*action), onWhat)
	if err != nil {
		fmt.Fprintf(stderr, "check: %v\n", err)
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		return writeJSON(enc, stderr, map[string]any{
			"subject": who.String(),
			"action":  *action,
			"object":  onWhat.String(),
			"allowed": allowed,
		})
	}
	fmt.Fprintln(stdout, allowed)
	if !allowed {
		return 1
	}
	return 0
}

func writeJSON(enc *json.Encoder, stderr io.Writer, v any) int {
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode result: %v\n", err)
		return 1
	}
	return 0
}

func runAllow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("allow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subjectType := fs.String("subject-type", "user", "subject type")
	subjectID := fs.String("subject-id", "", "subject id (required)")
	relation := fs.String("relation", "", "relation name (required)")
	objectType := fs.String("object-type", "", "object type (required)")
	objectID := fs.String("object-id", "", "object id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *subjectID == "" || *relation == "" || *objectType == "" || *objectID == "" {
		fmt.Fprintln(stderr, "allow: --subject-id, --relation, --object-type, --object-id are required")
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	who := model.SubjectRef{Type: *subjectType, ID: *subjectID}
	onWhat := model.Object{Type: *objectType, ID: *objectID}
	tuple, err := engine.Allow(ctx, who, model.Relation(*relation), onWhat, nil)
	if err != nil {
		fmt.Fprintf(stderr, "allow: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "granted %s %s %s (id=%s)\n", who, *relation, onWhat, tuple.ID)
	return 0
}

func runDisallow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("disallow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subjectType := fs.String("subject-type", "", "subject type filter")
	subjectID := fs.String("subject-id", "", "subject id filter")
	relation := fs.String("relation", "", "relation filter")
	objectType := fs.String("object-type", "", "object type filter")
	objectID := fs.String("object-id", "", "object id filter")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	filter := store.DeleteFilter{}
	if *subjectID != "" {
		ref := model.SubjectRef{Type: *subjectType, ID: *subjectID}
		filter.Who = &ref
	}
	if *relation != "" {
		rel := model.Relation(*relation)
		filter.Was = &rel
	}
	if *objectID != "" {
		obj := model.Object{Type: *objectType, ID: *objectID}
		filter.OnWhat = &obj
	}

	n, err := engine.DisallowAllMatching(ctx, filter)
	if err != nil {
		fmt.Fprintf(stderr, "disallow: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "removed %d tuples\n", n)
	return 0
}

func runAddMember(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("add-member", flag.ContinueOnError)
	fs.SetOutput(stderr)
	memberType := fs.String("member-type", "user", "member subject type")
	memberID := fs.String("member-id", "", "member subject id (required)")
	groupType := fs.String("group-type", "", "group object type (required)")
	groupID := fs.String("group-id", "", "group object id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *memberID == "" || *groupType == "" || *groupID == "" {
		fmt.Fprintln(stderr, "add-member: --member-id, --group-type, --group-id are required")
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	member := model.SubjectRef{Type: *memberType, ID: *memberID}
	group := model.Object{Type: *groupType, ID: *groupID}
	if _, err := engine.AddMember(ctx, member, group, nil); err != nil {
		fmt.Fprintf(stderr, "add-member: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "added %s to %s\n", member, group)
	return 0
}

func runRemoveMember(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("remove-member", flag.ContinueOnError)
	fs.SetOutput(stderr)
	memberType := fs.String("member-type", "user", "member subject type")
	memberID := fs.String("member-id", "", "member subject id (required)")
	groupType := fs.String("group-type", "", "group object type (required)")
	groupID := fs.String("group-id", "", "group object id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *memberID == "" || *groupType == "" || *groupID == "" {
		fmt.Fprintln(stderr, "remove-member: --member-id, --group-type, --group-id are required")
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	member := model.SubjectRef{Type: *memberType, ID: *memberID}
	group := model.Object{Type: *groupType, ID: *groupID}
	n, err := engine.RemoveMember(ctx, member, group)
	if err != nil {
		fmt.Fprintf(stderr, "remove-member: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "removed %d tuple(s)\n", n)
	return 0
}

func runSetParent(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("set-parent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	childType := fs.String("child-type", "", "child object type (required)")
	childID := fs.String("child-id", "", "child object id (required)")
	parentType := fs.String("parent-type", "", "parent object type (required)")
	parentID := fs.String("parent-id", "", "parent object id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *childType == "" || *childID == "" || *parentType == "" || *parentID == "" {
		fmt.Fprintln(stderr, "set-parent: all flags are required")
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	child := model.Object{Type: *childType, ID: *childID}
	parent := model.Object{Type: *parentType, ID: *parentID}
	if _, err := engine.SetParent(ctx, child, parent, nil); err != nil {
		fmt.Fprintf(stderr, "set-parent: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "set %s parent to %s\n", child, parent)
	return 0
}

func runRemoveParent(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("remove-parent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	childType := fs.String("child-type", "", "child object type (required)")
	childID := fs.String("child-id", "", "child object id (required)")
	parentType := fs.String("parent-type", "", "parent object type (required)")
	parentID := fs.String("parent-id", "", "parent object id (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *childType == "" || *childID == "" || *parentType == "" || *parentID == "" {
		fmt.Fprintln(stderr, "remove-parent: all flags are required")
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	child := model.Object{Type: *childType, ID: *childID}
	parent := model.Object{Type: *parentType, ID: *parentID}
	n, err := engine.RemoveParent(ctx, child, parent)
	if err != nil {
		fmt.Fprintf(stderr, "remove-parent: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "removed %d tuple(s)\n", n)
	return 0
}

func runList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subjectType := fs.String("subject-type", "", "subject type filter")
	subjectID := fs.String("subject-id", "", "subject id filter")
	relation := fs.String("relation", "", "relation filter")
	objectType := fs.String("object-type", "", "object type filter")
	objectID := fs.String("object-id", "", "object id filter")
	offset := fs.Int("offset", 0, "pagination offset")
	limit := fs.Int("limit", 100, "pagination limit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	filter := store.Filter{}
	if *subjectID != "" {
		ref := model.SubjectRef{Type: *subjectType, ID: *subjectID}
		filter.Subject = &ref
	}
	if *relation != "" {
		rel := model.Relation(*relation)
		filter.Relation = &rel
	}
	if *objectID != "" {
		obj := model.Object{Type: *objectType, ID: *objectID}
		filter.Object = &obj
	}

	tuples, err := engine.ListTuples(ctx, filter, *offset, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "list: %v\n", err)
		return 1
	}
	for _, t := range tuples {
		fmt.Fprintf(stdout, "%s %s %s\n", t.Subject, t.Relation, t.Object)
	}
	return 0
}

func runAccessible(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("accessible", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subjectType := fs.String("subject-type", "user", "subject type")
	subjectID := fs.String("subject-id", "", "subject id (required)")
	objectType := fs.String("object-type", "", "object type to list (required)")
	action := fs.String("action", "", "restrict to objects where this action is allowed")
	maxDepth := fs.Int("max-depth", 0, "override the default group-membership traversal depth (0 uses the engine default)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *subjectID == "" || *objectType == "" {
		fmt.Fprintln(stderr, "accessible: --subject-id and --object-type are required")
		return 2
	}

	ctx := context.Background()
	engine, closer, err := bootstrap(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap: %v\n", err)
		return 1
	}
	defer closer()

	who := model.Subject{Type: *subjectType, ID: *subjectID}
	var actionFilter *model.Action
	if *action != "" {
		a := model.Action(*action)
		actionFilter = &a
	}

	var depthFilter *int
	if *maxDepth > 0 {
		depthFilter = maxDepth
	}

	results, err := engine.ListAccessibleObjects(ctx, who, *objectType, actionFilter, depthFilter)
	if err != nil {
		fmt.Fprintf(stderr, "accessible: %v\n", err)
		return 1
	}
	for _, r := range results {
		fmt.Fprintf(stdout, "%s actions=%v\n", r.Object, r.Actions)
	}
	return 0
}
