// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

// ChainName is the only chain the host talks about.
const ChainName = "Minima"

const (
	StampData           = "stamp_data"
	StampHash           = "stamp_hash"
	VerifyData          = "verify_data"
	VerifyDataWithProof = "verify_data_with_proof"
	Health              = "health"
	Ready               = "ready"
)

var (
	primaryTools    = []string{StampData, VerifyData}
	diagnosticTools = []string{Health, Ready}
	stampTools      = map[string]bool{StampData: true, StampHash: true}
	verifyTools     = map[string]bool{VerifyData: true, VerifyDataWithProof: true}
)

// PrimaryTools lists the tools whose results drive the user-facing answer.
func PrimaryTools() []string { return append([]string(nil), primaryTools...) }

// DiagnosticTools lists health and readiness probes.
func DiagnosticTools() []string { return append([]string(nil), diagnosticTools...) }

// IsPrimary reports whether name is authoritative for the final message.
// The legacy stamp_hash and verify_data_with_proof names count as well.
func IsPrimary(name string) bool {
	return stampTools[name] || verifyTools[name]
}

// IsDiagnostic reports whether name is a health/readiness probe.
func IsDiagnostic(name string) bool {
	return name == Health || name == Ready
}

// IsStampTool reports whether name stamps data on chain.
func IsStampTool(name string) bool { return stampTools[name] }

// IsVerifyTool reports whether name verifies a proof.
func IsVerifyTool(name string) bool { return verifyTools[name] }
