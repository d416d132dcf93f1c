// Package loader reads declarative schema bundles — YAML documents
// describing relations, the action-to-relations map, and hierarchy
// propagation — from a local file, an S3 object, or a GCS object, validates
// their shape against a JSON Schema, and checks schemaVersion compatibility
// before handing the result to schema.Build.
//
// None of this is on the decision path: it runs once, at engine bootstrap.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"cloud.google.com/go/storage"
	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/relguard/rebac/pkg/model"
	"github.com/relguard/rebac/pkg/schema"
)

// yamlRelation mirrors schema.RelationDef with YAML tags.
type yamlRelation struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
}

// yamlDeclaration is the on-disk shape of a schema bundle.
type yamlDeclaration struct {
	SchemaVersion        string              `yaml:"schemaVersion" json:"schemaVersion"`
	Relations            []yamlRelation      `yaml:"relations" json:"relations"`
	ActionToRelations    map[string][]string `yaml:"actionToRelations" json:"actionToRelations"`
	HierarchyPropagation map[string][]string `yaml:"hierarchyPropagation,omitempty" json:"hierarchyPropagation,omitempty"`
}

// bundleSchemaJSON is the JSON Schema every loaded document must satisfy
// before it is trusted enough to decode into a schema.Declaration.
const bundleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schemaVersion", "relations", "actionToRelations"],
  "properties": {
    "schemaVersion": {"type": "string"},
    "relations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "kind"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "kind": {"enum": ["direct", "group", "hierarchy"]}
        }
      }
    },
    "actionToRelations": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string"}
      }
    },
    "hierarchyPropagation": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string"}
      }
    }
  }
}`

const bundleSchemaURL = "https://relguard.dev/schema/bundle.schema.json"

var compiledBundleSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(bundleSchemaURL, bytes.NewReader([]byte(bundleSchemaJSON))); err != nil {
		panic(fmt.Sprintf("loader: invalid embedded bundle schema: %v", err))
	}
	compiled, err := c.Compile(bundleSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("loader: bundle schema failed to compile: %v", err))
	}
	compiledBundleSchema = compiled
}

// MinSchemaVersion is the oldest bundle schemaVersion this loader accepts.
// Bundles declaring an older major version are rejected outright; this is a
// compatibility gate on the bundle format, independent of the schema's own
// relation/action contents.
var MinSchemaVersion = semver.MustParse("1.0.0")

// LoadYAML parses, shape-validates, and version-checks a schema bundle from
// r, returning the schema.Declaration ready for schema.Build.
func LoadYAML(r io.Reader) (*schema.Declaration, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: read failed: %w", err)
	}

	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("loader: yaml parse failed: %w", err)
	}

	// jsonschema validates over JSON-shaped data (map[string]interface{}
	// with string keys); round-trip through JSON to normalize YAML's
	// map[interface{}]interface{} quirks.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("loader: normalize failed: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(asJSON, &normalized); err != nil {
		return nil, fmt.Errorf("loader: normalize failed: %w", err)
	}

	if err := compiledBundleSchema.Validate(normalized); err != nil {
		return nil, fmt.Errorf("loader: schema bundle failed validation: %w", err)
	}

	var doc yamlDeclaration
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("loader: yaml decode failed: %w", err)
	}

	version, err := semver.NewVersion(doc.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("loader: invalid schemaVersion %q: %w", doc.SchemaVersion, err)
	}
	if version.LessThan(MinSchemaVersion) {
		return nil, fmt.Errorf("loader: bundle schemaVersion %s is older than minimum supported %s", version, MinSchemaVersion)
	}

	decl := &schema.Declaration{
		SchemaVersion:        doc.SchemaVersion,
		ActionToRelations:    make(map[model.Action][]model.Relation, len(doc.ActionToRelations)),
		HierarchyPropagation: make(map[model.Action][]model.Action, len(doc.HierarchyPropagation)),
	}
	for _, rd := range doc.Relations {
		decl.Relations = append(decl.Relations, schema.RelationDef{
			Name: rd.Name,
			Kind: schema.RelationKind(rd.Kind),
		})
	}
	for action, rels := range doc.ActionToRelations {
		out := make([]model.Relation, len(rels))
		for i, r := range rels {
			out[i] = model.Relation(r)
		}
		decl.ActionToRelations[model.Action(action)] = out
	}
	for action, parents := range doc.HierarchyPropagation {
		out := make([]model.Action, len(parents))
		for i, p := range parents {
			out[i] = model.Action(p)
		}
		decl.HierarchyPropagation[model.Action(action)] = out
	}

	return decl, nil
}

// LoadFile loads a schema bundle from a local path.
func LoadFile(path string) (*schema.Declaration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadS3 fetches a schema bundle from an S3 object using the process's
// default AWS credential chain.
func LoadS3(ctx context.Context, bucket, key string) (*schema.Declaration, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loader: aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("loader: s3 get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return LoadYAML(out.Body)
}

// LoadGCS fetches a schema bundle from a GCS object using the process's
// default application credentials.
func LoadGCS(ctx context.Context, bucket, object string) (*schema.Declaration, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("loader: gcs client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("loader: gcs get %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()
	return LoadYAML(rc)
}
