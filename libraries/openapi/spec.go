package openapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pb33f/libopenapi"
	"github.com/pb33f/libopenapi/datamodel/high/base"
	v3high "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// Spec is a parsed OpenAPI document with its YAML and JSON renderings cached.
type Spec struct {
	model    *v3high.Document
	yamlData []byte
	jsonData []byte
}

// Load parses yamlData; a non-empty version replaces info.version.
func Load(yamlData []byte, version string) (*Spec, error) {
	return build(yamlData, func(model *v3high.Document) {
		if version != "" {
			model.Info.Version = version
		}
	})
}

func build(yamlData []byte, mutate func(*v3high.Document)) (*Spec, error) {
	doc, err := libopenapi.NewDocument(yamlData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	model, err := doc.BuildV3Model()
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI model: %v", err)
	}
	mutate(&model.Model)

	yamlOut, err := model.Model.Render()
	if err != nil {
		return nil, fmt.Errorf("failed to render OpenAPI as YAML: %w", err)
	}
	jsonOut, err := model.Model.RenderJSON("  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render OpenAPI as JSON: %w", err)
	}

	return &Spec{model: &model.Model, yamlData: yamlOut, jsonData: jsonOut}, nil
}

func (s *Spec) Version() string {
	return s.model.Info.Version
}

func (s *Spec) YAML() []byte {
	return s.yamlData
}

func (s *Spec) JSON() []byte {
	return s.jsonData
}

func (s *Spec) Paths() []string {
	var paths []string
	for path := range s.model.Paths.PathItems.FromOldest() {
		paths = append(paths, path)
	}
	return paths
}

func (s *Spec) HasPath(path string) bool {
	return s.model.Paths.PathItems.GetOrZero(path) != nil
}

func (s *Spec) PathMethods(path string) []string {
	item := s.model.Paths.PathItems.GetOrZero(path)
	if item == nil {
		return nil
	}
	return operationMethods(item)
}

func operationMethods(item *v3high.PathItem) []string {
	var methods []string
	for _, op := range []struct {
		method string
		op     *v3high.Operation
	}{
		{http.MethodGet, item.Get},
		{http.MethodPost, item.Post},
		{http.MethodPut, item.Put},
		{http.MethodDelete, item.Delete},
		{http.MethodPatch, item.Patch},
	} {
		if op.op != nil {
			methods = append(methods, op.method)
		}
	}
	return methods
}

type Route struct {
	Method string
	Path   string
}

type ValidationResult struct {
	Valid           bool
	MissingHandlers []string
	ExtraHandlers   []string
}

// ValidateRoutes compares documented operations with the routes a server registers.
// Routes outside the document are reported unless ignore says they are internal.
func (s *Spec) ValidateRoutes(routes []Route, ignore PathFilter) ValidationResult {
	result := ValidationResult{Valid: true}

	registered := make(map[Route]bool, len(routes))
	for _, r := range routes {
		registered[r] = true
	}

	documented := make(map[Route]bool)
	for path, item := range s.model.Paths.PathItems.FromOldest() {
		for _, method := range operationMethods(item) {
			route := Route{Method: method, Path: path}
			documented[route] = true
			if !registered[route] {
				result.MissingHandlers = append(result.MissingHandlers, method+" "+path)
				result.Valid = false
			}
		}
	}

	for _, r := range routes {
		if documented[r] || (ignore != nil && ignore(r.Path)) {
			continue
		}
		result.ExtraHandlers = append(result.ExtraHandlers, r.Method+" "+r.Path)
		result.Valid = false
	}
	sort.Strings(result.ExtraHandlers)

	return result
}

// Handler serves JSON by default, YAML for ?format=yaml or a yaml Accept header.
func (s *Spec) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		format := r.URL.Query().Get("format")

		if format == "yaml" || (format == "" && strings.Contains(accept, "yaml")) {
			w.Header().Set("Content-Type", "application/x-yaml")
			w.Write(s.yamlData)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(s.jsonData)
	})
}

type PathFilter func(path string) bool

// Filter returns a copy keeping only the paths keep accepts, pruning tags and
// component schemas no remaining operation references.
func (s *Spec) Filter(keep PathFilter) (*Spec, error) {
	return build(s.yamlData, func(model *v3high.Document) {
		var remove []string
		for path := range model.Paths.PathItems.FromOldest() {
			if !keep(path) {
				remove = append(remove, path)
			}
		}
		for _, path := range remove {
			model.Paths.PathItems.Delete(path)
		}

		tagsToKeep := make(map[string]bool)
		referencedSchemas := make(map[string]bool)
		for _, item := range model.Paths.PathItems.FromOldest() {
			for _, op := range []*v3high.Operation{item.Get, item.Post, item.Put, item.Delete, item.Patch} {
				if op == nil {
					continue
				}
				for _, tag := range op.Tags {
					tagsToKeep[tag] = true
				}
				collectSchemaRefs(op, referencedSchemas)
			}
		}

		if model.Components != nil && model.Components.Schemas != nil {
			// schemas referenced only from other schemas stay reachable
			for changed := true; changed; {
				changed = false
				for name, schema := range model.Components.Schemas.FromOldest() {
					if !referencedSchemas[name] {
						continue
					}
					before := len(referencedSchemas)
					collectRefsFromSchema(schema, referencedSchemas, true)
					changed = changed || len(referencedSchemas) != before
				}
			}
			var unused []string
			for name := range model.Components.Schemas.FromOldest() {
				if !referencedSchemas[name] {
					unused = append(unused, name)
				}
			}
			for _, name := range unused {
				model.Components.Schemas.Delete(name)
			}
		}

		filteredTags := make([]*base.Tag, 0, len(model.Tags))
		for _, tag := range model.Tags {
			if tagsToKeep[tag.Name] {
				filteredTags = append(filteredTags, tag)
			}
		}
		model.Tags = filteredTags
	})
}

func collectSchemaRefs(op *v3high.Operation, refs map[string]bool) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		for _, content := range op.RequestBody.Content.FromOldest() {
			collectRefsFromSchema(content.Schema, refs, false)
		}
	}

	if op.Responses != nil && op.Responses.Codes != nil {
		for _, resp := range op.Responses.Codes.FromOldest() {
			if resp.Content == nil {
				continue
			}
			for _, content := range resp.Content.FromOldest() {
				collectRefsFromSchema(content.Schema, refs, false)
			}
		}
	}

	for _, param := range op.Parameters {
		collectRefsFromSchema(param.Schema, refs, false)
	}
}

// collectRefsFromSchema records component references reachable from schema.
// With resolved set, a top-level reference is followed into its target.
func collectRefsFromSchema(schema *base.SchemaProxy, refs map[string]bool, resolved bool) {
	if schema == nil {
		return
	}

	if schema.IsReference() {
		ref := schema.GetReference()
		if name, ok := strings.CutPrefix(ref, "#/components/schemas/"); ok {
			refs[name] = true
		}
		if !resolved {
			return
		}
	}

	s := schema.Schema()
	if s == nil {
		return
	}

	if s.Properties != nil {
		for _, prop := range s.Properties.FromOldest() {
			collectRefsFromSchema(prop, refs, false)
		}
	}
	if s.Items != nil && s.Items.A != nil {
		collectRefsFromSchema(s.Items.A, refs, false)
	}
	for _, group := range [][]*base.SchemaProxy{s.AllOf, s.OneOf, s.AnyOf} {
		for _, sub := range group {
			collectRefsFromSchema(sub, refs, false)
		}
	}
	if s.AdditionalProperties != nil && s.AdditionalProperties.A != nil {
		collectRefsFromSchema(s.AdditionalProperties.A, refs, false)
	}
}
