package agent

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"

	"medical-triage-agent/internal/triage"
)

const routerSchemaName = "router_response"

type routerResponse struct {
	Decision        string  `json:"decision" jsonschema:"required,enum=ask_human,enum=emergencial,enum=diagnostico_diferencial,description=Decisão sobre qual caminho seguir com base na descrição do paciente"`
	CaseSynthesis   *string `json:"case_synthesis" jsonschema:"description=Síntese técnica do caso a ser analisado"`
	QuestionToHuman *string `json:"question_to_human" jsonschema:"description=Pergunta específica para o usuário quando há necessidade de esclarecimento"`
	DecisionReason  *string `json:"decision_reason" jsonschema:"description=Explicação pela qual a decisão foi tomada"`
}

func (r routerResponse) output() *triage.ClassifierOutput {
	return &triage.ClassifierOutput{
		Decision:        r.Decision,
		CaseSynthesis:   r.CaseSynthesis,
		QuestionToHuman: r.QuestionToHuman,
		DecisionReason:  r.DecisionReason,
	}
}

var (
	routerSchema     = generateSchema[routerResponse]()
	routerSchemaJSON = mustJSON(routerSchema)
)

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schemaObj, err := schemaToMap(reflector.Reflect(v))
	if err != nil {
		panic(err)
	}
	delete(schemaObj, "$schema")
	delete(schemaObj, "$id")
	ensureStrictCompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ensureStrictCompliance rewrites an object schema for strict structured
// output: every property becomes required and the ones that were optional
// become nullable.
func ensureStrictCompliance(schema map[string]any) {
	if t, ok := schema["type"].(string); !ok || t != "object" {
		return
	}
	schema["additionalProperties"] = false

	required := map[string]bool{}
	if list, ok := schema["required"].([]any); ok {
		for _, name := range list {
			if s, ok := name.(string); ok {
				required[s] = true
			}
		}
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}
	all := make([]string, 0, len(props))
	for name, prop := range props {
		all = append(all, name)
		propMap, ok := prop.(map[string]any)
		if !ok {
			continue
		}
		if !required[name] {
			if t, ok := propMap["type"].(string); ok {
				propMap["type"] = []any{t, "null"}
			}
		}
		ensureStrictCompliance(propMap)
	}
	sort.Strings(all)
	schema["required"] = all
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal schema: %v", err))
	}
	return string(b)
}

// jsonInstruction is appended to the system prompt of providers without
// native schema enforcement.
func jsonInstruction() string {
	return "Responda exclusivamente com um objeto JSON válido que siga este JSON Schema:\n" + routerSchemaJSON
}
