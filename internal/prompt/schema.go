package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const documentSchemaJSON = `{
  "type": "object",
  "properties": {
    "prompts": {"type": "array"},
    "categories": {"type": "array"}
  }
}`

const categorySchemaJSON = `{
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1, "pattern": "\\S"}
  }
}`

const promptSchemaJSON = `{"type": "object"}`

const categoryCollectionSchemaJSON = `{
  "type": "array",
  "items": {"$ref": "category.json"}
}`

var (
	documentSchema           = mustCompile("document.json", documentSchemaJSON)
	categorySchema           = mustCompile("category.json", categorySchemaJSON)
	promptSchema             = mustCompile("prompt.json", promptSchemaJSON)
	categoryCollectionSchema = mustCompile("categories.json", categoryCollectionSchemaJSON)
)

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	// categories.json references category.json
	if err := compiler.AddResource("category.json", strings.NewReader(categorySchemaJSON)); err != nil {
		panic(fmt.Sprintf("load category schema: %v", err))
	}
	if name != "category.json" {
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("load %s: %v", name, err))
		}
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return schema
}

// ValidCategory reports whether raw is an object with a non-empty string id and a non-blank name.
func ValidCategory(raw json.RawMessage) bool {
	return validate(categorySchema, raw) == nil
}

// ValidPromptShape reports whether raw is a JSON object. Field-level repair
// is left to Upgrade.
func ValidPromptShape(raw json.RawMessage) bool {
	return validate(promptSchema, raw) == nil
}

// ValidateCategoryCollection checks a stored categories value: an array in
// which every entry has a non-empty id and name.
func ValidateCategoryCollection(raw []byte) error {
	return validate(categoryCollectionSchema, raw)
}

func validateDocument(tree any) error {
	return documentSchema.Validate(tree)
}

func validate(schema *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
