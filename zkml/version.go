package zkml

// Name and Version identify the toolchain in CLI output and logs.
const (
	Name    = "zkml-gnark"
	Version = "0.2.0"
)

// VersionInfo describes the build for the version subcommand.
type VersionInfo struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Status        string   `json:"status"`
	ProvingScheme string   `json:"proving_scheme"`
	Curve         string   `json:"curve"`
	Dependencies  []string `json:"dependencies"`
}

// VersionDescriptor reports the toolchain identity and the cryptographic
// stack it was built against.
func VersionDescriptor() VersionInfo {
	return VersionInfo{
		Name:          Name,
		Version:       Version,
		Status:        "operational",
		ProvingScheme: "PLONK/KZG",
		Curve:         "BN254",
		Dependencies: []string{
			"github.com/consensys/gnark",
			"github.com/consensys/gnark-crypto",
		},
	}
}
