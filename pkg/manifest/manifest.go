// Package manifest loads the scanner Job manifest and checks it against the
// contract the orchestrator relies on: a batch/v1 Job with bounded retries,
// a non-restarting pod and a name/namespace matching the configuration.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes/scheme"

	"github.com/werf/scanjob/pkg/utils"
)

//go:embed job_contract.schema.json
var jobContractSchema string

var ErrManifestNotFound = errors.New("job manifest not found")

type ContractError struct {
	Path       string
	Violations []string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("job manifest %q violates the job contract:\n- %s", e.Path, strings.Join(e.Violations, "\n- "))
}

// Load reads, validates and decodes the Job manifest at path.
func Load(path string) (*batchv1.Job, error) {
	exists, err := utils.FileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read job manifest %q: %w", path, err)
	}

	if err := validateContract(path, data); err != nil {
		return nil, err
	}

	return decode(path, data)
}

func validateContract(path string, data []byte) error {
	jsonData, err := yaml.ToJSON(data)
	if err != nil {
		return fmt.Errorf("convert job manifest %q to json: %w", path, err)
	}

	schemaLoader := gojsonschema.NewStringLoader(jobContractSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate job manifest %q: %w", path, err)
	}

	if !result.Valid() {
		contractErr := &ContractError{Path: path}
		for _, resultErr := range result.Errors() {
			contractErr.Violations = append(contractErr.Violations, resultErr.String())
		}
		return contractErr
	}

	return nil
}

func decode(path string, data []byte) (*batchv1.Job, error) {
	obj, _, err := scheme.Codecs.UniversalDeserializer().Decode(data, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("decode job manifest %q: %w", path, err)
	}

	job, ok := obj.(*batchv1.Job)
	if !ok {
		return nil, fmt.Errorf("expected a batch/v1 Job in %q, got %s", path, reflect.TypeOf(obj))
	}

	return job, nil
}

// CheckIdentity ensures the manifest describes the job the orchestrator is
// configured to manage. An empty manifest namespace is set to namespace.
func CheckIdentity(job *batchv1.Job, name, namespace string) error {
	if job.Name != name {
		return fmt.Errorf("job manifest name %q does not match configured job name %q", job.Name, name)
	}

	switch job.Namespace {
	case "":
		job.Namespace = namespace
	case namespace:
	default:
		return fmt.Errorf("job manifest namespace %q does not match configured namespace %q", job.Namespace, namespace)
	}

	return nil
}
