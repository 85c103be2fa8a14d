package shaderbundle

import (
	"fmt"
	"os"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/vixen/internal/resource"
)

// manifest is the on-disk TOML shape a shader toolchain emits alongside
// its compiled SPIR-V; LoadManifest converts it into a validated
// ShaderDataBundle. Kept separate from ShaderDataBundle itself so the
// wire format (string-keyed, TOML-friendly) can evolve independently of
// the in-memory representation the graph consumes.
type manifest struct {
	ProgramName string `toml:"program_name"`
	Structs     []struct {
		Name      string `toml:"name"`
		TotalSize uint32 `toml:"total_size"`
		Fields    []struct {
			Name           string `toml:"name"`
			Offset         uint32 `toml:"offset"`
			Size           uint32 `toml:"size"`
			BaseType       string `toml:"base_type"`
			ComponentCount uint8  `toml:"component_count"`
			ArrayStride    uint32 `toml:"array_stride"`
		} `toml:"fields"`
	} `toml:"structs"`
	Bindings []struct {
		Set            uint32   `toml:"set"`
		Binding        uint32   `toml:"binding"`
		Type           string   `toml:"type"`
		Stages         []string `toml:"stages"`
		Count          uint32   `toml:"count"`
		StructDefIndex int      `toml:"struct_def_index"`
		Name           string   `toml:"name"`
	} `toml:"bindings"`
	PushConstants []struct {
		Stages []string `toml:"stages"`
		Offset uint32   `toml:"offset"`
		Size   uint32   `toml:"size"`
	} `toml:"push_constants"`
}

var baseTypeNames = map[string]resource.BaseType{
	"float32": resource.BaseTypeFloat32,
	"int32":   resource.BaseTypeInt32,
	"uint32":  resource.BaseTypeUint32,
	"float64": resource.BaseTypeFloat64,
	"bool32":  resource.BaseTypeBool32,
}

// LoadManifest reads and parses a TOML shader manifest from path,
// producing a validated ShaderDataBundle. DescriptorInterfaceHash is
// computed from the bindings and struct layout, so two manifests with an
// identical descriptor interface — even under different program names —
// hash identically, which is what variadic slot discovery (spec.md
// section 3.1) compares against.
func LoadManifest(path string) (*ShaderDataBundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shaderbundle: read manifest %s: %w", path, err)
	}
	return ParseManifest(raw)
}

// ParseManifest parses TOML manifest bytes directly, useful for tests and
// for callers that already have the bundle content in memory (e.g. the
// asset watcher delivering a changed file's contents).
func ParseManifest(raw []byte) (*ShaderDataBundle, error) {
	var m manifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("shaderbundle: parse manifest: %w", err)
	}

	structDefs := make([]*resource.RuntimeStructDescriptor, len(m.Structs))
	for i, s := range m.Structs {
		fields := make([]resource.StructField, len(s.Fields))
		for j, f := range s.Fields {
			baseType, ok := baseTypeNames[f.BaseType]
			if !ok {
				return nil, fmt.Errorf("shaderbundle: struct %q field %q has unknown base type %q", s.Name, f.Name, f.BaseType)
			}
			fields[j] = resource.StructField{
				Name:           f.Name,
				Offset:         f.Offset,
				Size:           f.Size,
				BaseType:       baseType,
				ComponentCount: f.ComponentCount,
				ArrayStride:    f.ArrayStride,
			}
		}
		structDefs[i] = &resource.RuntimeStructDescriptor{
			Name:      s.Name,
			Fields:    fields,
			TotalSize: s.TotalSize,
		}
	}

	bindings := make([]Binding, len(m.Bindings))
	for i, b := range m.Bindings {
		stages := make([]StageFlag, len(b.Stages))
		for j, s := range b.Stages {
			stages[j] = StageFlag(s)
		}
		bindings[i] = Binding{
			Set:            b.Set,
			Binding:        b.Binding,
			Type:           DescriptorType(b.Type),
			Stages:         stages,
			Count:          b.Count,
			StructDefIndex: b.StructDefIndex,
			Name:           b.Name,
		}
	}

	pushConstants := make([]PushConstantRange, len(m.PushConstants))
	for i, p := range m.PushConstants {
		stages := make([]StageFlag, len(p.Stages))
		for j, s := range p.Stages {
			stages[j] = StageFlag(s)
		}
		pushConstants[i] = PushConstantRange{Stages: stages, Offset: p.Offset, Size: p.Size}
	}

	hash, err := hashstructure.Hash(struct {
		Bindings   []Binding
		StructDefs []*resource.RuntimeStructDescriptor
	}{bindings, structDefs}, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, fmt.Errorf("shaderbundle: hash descriptor interface: %w", err)
	}

	bundle := &ShaderDataBundle{
		ProgramName:             m.ProgramName,
		Bindings:                bindings,
		StructDefs:              structDefs,
		PushConstantRanges:      pushConstants,
		DescriptorInterfaceHash: hash,
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return bundle, nil
}
