package shaderbundle

import "testing"

const validManifest = `
program_name = "raymarch.compute"

[[structs]]
name = "CameraUBO"
total_size = 16

[[structs.fields]]
name = "origin"
offset = 0
size = 12
base_type = "float32"
component_count = 3

[[structs.fields]]
name = "fov"
offset = 12
size = 4
base_type = "float32"
component_count = 1

[[bindings]]
set = 0
binding = 0
type = "UniformBuffer"
stages = ["Compute"]
count = 1
struct_def_index = 0
name = "camera"

[[bindings]]
set = 0
binding = 1
type = "StorageImage"
stages = ["Compute"]
count = 1
struct_def_index = -1
name = "outputImage"

[[push_constants]]
stages = ["Compute"]
offset = 0
size = 8
`

func TestParseManifestProducesValidatedBundle(t *testing.T) {
	bundle, err := ParseManifest([]byte(validManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if bundle.ProgramName != "raymarch.compute" {
		t.Fatalf("ProgramName = %q", bundle.ProgramName)
	}
	if len(bundle.StructDefs) != 1 || bundle.StructDefs[0].TotalSize != 16 {
		t.Fatalf("unexpected struct defs: %+v", bundle.StructDefs)
	}
	if len(bundle.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bundle.Bindings))
	}
	if bundle.DescriptorInterfaceHash == 0 {
		t.Fatalf("expected a nonzero descriptor interface hash")
	}
	if len(bundle.PushConstantRanges) != 1 || bundle.PushConstantRanges[0].Size != 8 {
		t.Fatalf("unexpected push constant ranges: %+v", bundle.PushConstantRanges)
	}
}

func TestParseManifestIdenticalInterfaceHashesEqualAcrossProgramNames(t *testing.T) {
	a, err := ParseManifest([]byte(validManifest))
	if err != nil {
		t.Fatalf("ParseManifest a: %v", err)
	}
	renamed := []byte(validManifest)
	renamed = []byte(replaceProgramName(string(renamed), "raymarch.compute", "raymarch2.compute"))
	b, err := ParseManifest(renamed)
	if err != nil {
		t.Fatalf("ParseManifest b: %v", err)
	}
	if a.DescriptorInterfaceHash != b.DescriptorInterfaceHash {
		t.Fatalf("expected identical descriptor interface hashes regardless of program name, got %d != %d",
			a.DescriptorInterfaceHash, b.DescriptorInterfaceHash)
	}
}

func TestParseManifestRejectsUnknownBaseType(t *testing.T) {
	bad := `
program_name = "x"

[[structs]]
name = "S"
total_size = 4

[[structs.fields]]
name = "f"
offset = 0
size = 4
base_type = "not_a_type"
component_count = 1
`
	if _, err := ParseManifest([]byte(bad)); err == nil {
		t.Fatalf("expected an error for an unknown base type")
	}
}

func TestParseManifestRejectsOutOfRangeStructDefIndex(t *testing.T) {
	bad := `
program_name = "x"

[[bindings]]
set = 0
binding = 0
type = "UniformBuffer"
stages = ["Vertex"]
count = 1
struct_def_index = 3
name = "b"
`
	if _, err := ParseManifest([]byte(bad)); err == nil {
		t.Fatalf("expected an error for an out-of-range struct def index")
	}
}

func TestBindingsForSetReturnsAscendingBindingOrder(t *testing.T) {
	bundle, err := ParseManifest([]byte(validManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	bindings := bundle.BindingsForSet(0)
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings for set 0, got %d", len(bindings))
	}
	if bindings[0].Binding != 0 || bindings[1].Binding != 1 {
		t.Fatalf("bindings not in ascending order: %+v", bindings)
	}
}

func replaceProgramName(manifest, from, to string) string {
	out := make([]byte, 0, len(manifest))
	idx := 0
	for idx < len(manifest) {
		if idx+len(from) <= len(manifest) && manifest[idx:idx+len(from)] == from {
			out = append(out, to...)
			idx += len(from)
			continue
		}
		out = append(out, manifest[idx])
		idx++
	}
	return string(out)
}
