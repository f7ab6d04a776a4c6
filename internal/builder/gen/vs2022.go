package gen

import (
	"encoding/xml"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

//
// structures for .vcxproj
//

type VSProject struct {
	XMLName              xml.Name                `xml:"Project"`
	DefaultTargets       string                  `xml:"DefaultTargets,attr"`
	ToolsVersion         string                  `xml:"ToolsVersion,attr"`
	XMLNS                string                  `xml:"xmlns,attr"`
	PropertyGroups       []VSPropertyGroup       `xml:"PropertyGroup"`
	ItemGroups           []VSItemGroup           `xml:"ItemGroup"`
	ImportGroups         []VSImportGroup         `xml:"ImportGroup"`
	ItemDefinitionGroups []VSItemDefinitionGroup `xml:"ItemDefinitionGroup"`
	Imports              []VSImport              `xml:"Import"`
}

type VSItemGroup struct {
	Label                 string                   `xml:"Label,attr,omitempty"`
	ProjectConfigurations []VSProjectConfiguration `xml:"ProjectConfiguration,omitempty"`
	ClCompiles            []VSClCompile            `xml:"ClCompile,omitempty"`
	ProjectReferences     []VSProjectReference     `xml:"ProjectReference,omitempty"`
}

type VSProjectConfiguration struct {
	Include       string `xml:"Include,attr"`
	Configuration string `xml:"Configuration"`
	Platform      string `xml:"Platform"`
}

type VSClCompile struct {
	Include           string          `xml:"Include,attr"`
	ExcludedFromBuild []VSConditional `xml:"ExcludedFromBuild,omitempty"`
}

type VSConditional struct {
	Condition string `xml:"Condition,attr"`
	Value     string `xml:",chardata"`
}

type VSProjectReference struct {
	Include                 string `xml:"Include,attr"`
	Project                 string `xml:"Project"`
	Name                    string `xml:"Name"`
	LinkLibraryDependencies bool   `xml:"LinkLibraryDependencies"`
}

type VSPropertyGroup struct {
	Label                        string `xml:"Label,attr,omitempty"`
	Condition                    string `xml:"Condition,attr,omitempty"`
	PreferredToolArchitecture    string `xml:"PreferredToolArchitecture,omitempty"`
	ProjectGuid                  string `xml:"ProjectGuid,omitempty"`
	Keyword                      string `xml:"Keyword,omitempty"`
	WindowsTargetPlatformVersion string `xml:"WindowsTargetPlatformVersion,omitempty"`
	ProjectName                  string `xml:"ProjectName,omitempty"`
	ConfigurationType            string `xml:"ConfigurationType,omitempty"`
	PlatformToolset              string `xml:"PlatformToolset,omitempty"`
	CharacterSet                 string `xml:"CharacterSet,omitempty"`
	OutDir                       string `xml:"OutDir,omitempty"`
	IntDir                       string `xml:"IntDir,omitempty"`
	TargetName                   string `xml:"TargetName,omitempty"`
	TargetExt                    string `xml:"TargetExt,omitempty"`
	LinkIncremental              *bool  `xml:"LinkIncremental,omitempty"`
	GenerateManifest             bool   `xml:"GenerateManifest,omitempty"`
	UseDebugLibraries            *bool  `xml:"UseDebugLibraries,omitempty"`
	WholeProgramOptimization     *bool  `xml:"WholeProgramOptimization,omitempty"`
}

type VSImportGroup struct {
	Label   string     `xml:"Label,attr,omitempty"`
	Imports []VSImport `xml:"Import"`
}

type VSImport struct {
	Project   string `xml:"Project,attr"`
	Condition string `xml:"Condition,attr,omitempty"`
	Label     string `xml:"Label,attr,omitempty"`
}

type VSItemDefinitionGroup struct {
	Condition string          `xml:"Condition,attr"`
	ClCompile VSCppCompileDef `xml:"ClCompile"`
	Link      VSLinkDef       `xml:"Link"`
}

type VSCppCompileDef struct {
	WarningLevel                 string `xml:"WarningLevel"`
	SDLCheck                     bool   `xml:"SDLCheck"`
	AdditionalIncludeDirectories string `xml:"AdditionalIncludeDirectories"`
	PreprocessorDefinitions      string `xml:"PreprocessorDefinitions"`
	ConformanceMode              bool   `xml:"ConformanceMode"`
	Optimization                 string `xml:"Optimization,omitempty"`
	BasicRuntimeChecks           string `xml:"BasicRuntimeChecks,omitempty"`
	DebugInformationFormat       string `xml:"DebugInformationFormat,omitempty"`
	RuntimeLibrary               string `xml:"RuntimeLibrary,omitempty"`
	FunctionLevelLinking         *bool  `xml:"FunctionLevelLinking,omitempty"`
	IntrinsicFunctions           *bool  `xml:"IntrinsicFunctions,omitempty"`
}

type VSLinkDef struct {
	SubSystem                string `xml:"SubSystem"`
	GenerateDebugInformation *bool  `xml:"GenerateDebugInformation,omitempty"`
	AdditionalDependencies   string `xml:"AdditionalDependencies"`
	ProgramDataBaseFile      string `xml:"ProgramDataBaseFile,omitempty"`
	ImportLibrary            string `xml:"ImportLibrary,omitempty"`
	AdditionalOptions        string `xml:"AdditionalOptions,omitempty"`
	EnableCOMDATFolding      *bool  `xml:"EnableCOMDATFolding,omitempty"`
	OptimizeReferences       *bool  `xml:"OptimizeReferences,omitempty"`
}

type VSFiltersProject struct {
	XMLName      xml.Name             `xml:"Project"`
	ToolsVersion string               `xml:"ToolsVersion,attr"`
	XMLNS        string               `xml:"xmlns,attr"`
	ItemGroups   []VSFiltersItemGroup `xml:"ItemGroup"`
}

type VSFiltersItemGroup struct {
	ClCompiles []VSFiltersClCompile `xml:"ClCompile,omitempty"`
	Filters    []VSFiltersFilter    `xml:"Filter,omitempty"`
}

type VSFiltersClCompile struct {
	Include string `xml:"Include,attr"`
	Filter  string `xml:"Filter"`
}

type VSFiltersFilter struct {
	Include          string `xml:"Include,attr"`
	UniqueIdentifier string `xml:"UniqueIdentifier"`
	Extensions       string `xml:"Extensions"`
}

//
// generator
//

// vsPlatform maps a target architecture to its MSBuild platform and the
// linker /machine value
func vsPlatform(arch string) (platform, machine string, err error) {
	switch arch {
	case "x86_64":
		return "x64", "X64", nil
	case "x86":
		return "Win32", "X86", nil
	case "aarch64":
		return "ARM64", "ARM64", nil
	case "arm":
		return "ARM", "ARM", nil
	}
	return "", "", fmt.Errorf("Visual Studio can't target architecture %q", arch)
}

// vsConfig is one unit of a project seen as a configuration|platform pair
type vsConfig struct {
	unit     Unit
	platform string
	machine  string
}

func (c vsConfig) name() string { return c.unit.Configuration + "|" + c.platform }

func (c vsConfig) condition() string {
	return "'$(Configuration)|$(Platform)'=='" + c.name() + "'"
}

// vsProject gathers the units of one package across variants
type vsProject struct {
	name    string
	guid    string
	isExe   bool
	configs []vsConfig
	deps    []string // package names
}

type VS2022Gen struct {
	buildDir string
	units    map[string]Unit
}

func NewVS2022Gen(buildDir string) *VS2022Gen {
	return &VS2022Gen{
		buildDir: buildDir,
		units:    make(map[string]Unit),
	}
}

func (g *VS2022Gen) SetCompiler(cc, cxx string) {}

func (g *VS2022Gen) AddUnit(u Unit) {
	g.units[u.Key()] = u
}

// BuildFile names the solution after the first executable package
func (g *VS2022Gen) BuildFile() string {
	var first string
	for _, u := range sortedUnits(g.units) {
		if u.Kind == Executable {
			return u.Package + ".sln"
		}
		if first == "" {
			first = u.Package
		}
	}
	return first + ".sln"
}

// projectGUID is stable across regenerations so Visual Studio keeps its
// per-project state
func projectGUID(name string) string {
	return strings.ToUpper(uuid.NewSHA1(uuid.NameSpaceURL, []byte("qobs:project:"+name)).String())
}

func (g *VS2022Gen) projects() ([]*vsProject, error) {
	byName := make(map[string]*vsProject)
	for _, u := range sortedUnits(g.units) {
		platform, machine, err := vsPlatform(u.Arch)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.Key(), err)
		}

		p, ok := byName[u.Package]
		if !ok {
			p = &vsProject{name: u.Package, guid: projectGUID(u.Package)}
			byName[u.Package] = p
		}
		cfg := vsConfig{unit: u, platform: platform, machine: machine}
		for _, other := range p.configs {
			if other.name() == cfg.name() {
				return nil, fmt.Errorf("package %s has two units for configuration %s", u.Package, cfg.name())
			}
		}
		p.configs = append(p.configs, cfg)
		p.isExe = p.isExe || u.Kind == Executable

		for _, dep := range u.Dependencies {
			d, ok := g.units[dep]
			if !ok {
				return nil, fmt.Errorf("unit `%s` lists a non-existent dependency: `%s`", u.Key(), dep)
			}
			if !slices.Contains(p.deps, d.Package) {
				p.deps = append(p.deps, d.Package)
			}
		}
	}

	projects := make([]*vsProject, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		slices.Sort(byName[name].deps)
		projects = append(projects, byName[name])
	}
	return projects, nil
}

func (g *VS2022Gen) Generate() (string, error) {
	projects, err := g.projects()
	if err != nil {
		return "", err
	}

	guids := make(map[string]string, len(projects))
	for _, p := range projects {
		guids[p.name] = p.guid
	}

	for _, p := range projects {
		projectDir := filepath.Join(g.buildDir, p.name)
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			return "", err
		}
		if err := g.generateProjectFile(projectDir, p, guids); err != nil {
			return "", fmt.Errorf("project %s: %w", p.name, err)
		}
		if err := g.generateFiltersFile(projectDir, p); err != nil {
			return "", fmt.Errorf("project %s: %w", p.name, err)
		}
	}

	return g.generateSolutionFile(projects), nil
}

func (g *VS2022Gen) generateSolutionFile(projects []*vsProject) string {
	solutionGuid := strings.ToUpper(uuid.NewSHA1(uuid.NameSpaceURL, []byte("qobs:solution:"+g.BuildFile())).String())
	var sb strings.Builder

	writeln(&sb, "Microsoft Visual Studio Solution File, Format Version 12.00")
	writeln(&sb, "# Visual Studio Version 17")
	for _, p := range projects {
		// Windows (Visual C++) https://github.com/VISTALL/visual-studio-project-type-guids
		writeln(&sb,
			`Project("{8BC9CEB8-8B4A-11D0-8D11-00A0C91BC942}") = "`, p.name, `", "`, p.name, `\`, p.name, `.vcxproj", "{`, p.guid, `}"`,
		)
		writeln(&sb, "EndProject")
	}

	var solutionConfigs []string
	for _, p := range projects {
		for _, c := range p.configs {
			if !slices.Contains(solutionConfigs, c.name()) {
				solutionConfigs = append(solutionConfigs, c.name())
			}
		}
	}
	slices.Sort(solutionConfigs)

	writeln(&sb, "Global")
	writeln(&sb, "\tGlobalSection(SolutionConfigurationPlatforms) = preSolution")
	for _, name := range solutionConfigs {
		writeln(&sb, "\t\t", name, " = ", name)
	}
	writeln(&sb, "\tEndGlobalSection")
	writeln(&sb, "\tGlobalSection(ProjectConfigurationPlatforms) = postSolution")
	for _, p := range projects {
		for _, c := range p.configs {
			writeln(&sb, "\t\t{", p.guid, "}.", c.name(), ".ActiveCfg = ", c.name())
			writeln(&sb, "\t\t{", p.guid, "}.", c.name(), ".Build.0 = ", c.name())
		}
	}
	writeln(&sb, "\tEndGlobalSection")
	writeln(&sb, "\tGlobalSection(SolutionProperties) = preSolution")
	writeln(&sb, "\t\tHideSolutionNode = FALSE")
	writeln(&sb, "\tEndGlobalSection")
	writeln(&sb, "\tGlobalSection(ExtensibilityGlobals) = postSolution")
	writeln(&sb, "\t\tSolutionGuid = {", solutionGuid, "}")
	writeln(&sb, "\tEndGlobalSection")
	writeln(&sb, "EndGlobal")

	return sb.String()
}

// projectSources is the union of the sources of every configuration. A
// source missing from some configuration is excluded from its build.
func projectSources(projectDir string, p *vsProject) []VSClCompile {
	var all []string
	for _, c := range p.configs {
		for _, src := range c.unit.Sources {
			if !slices.Contains(all, src) {
				all = append(all, src)
			}
		}
	}
	slices.Sort(all)

	clCompiles := make([]VSClCompile, 0, len(all))
	for _, src := range all {
		relPath, err := filepath.Rel(projectDir, src)
		if err != nil {
			relPath = src
		}
		cl := VSClCompile{Include: relPath}
		for _, c := range p.configs {
			if !slices.Contains(c.unit.Sources, src) {
				cl.ExcludedFromBuild = append(cl.ExcludedFromBuild, VSConditional{Condition: c.condition(), Value: "true"})
			}
		}
		clCompiles = append(clCompiles, cl)
	}
	return clCompiles
}

func (g *VS2022Gen) generateProjectFile(projectDir string, p *vsProject, guids map[string]string) error {
	projectRefs := make([]VSProjectReference, 0, len(p.deps))
	for _, dep := range p.deps {
		projectRefs = append(projectRefs, VSProjectReference{
			Include:                 fmt.Sprintf(`..\%s\%s.vcxproj`, dep, dep),
			Project:                 "{" + guids[dep] + "}",
			Name:                    dep,
			LinkLibraryDependencies: true,
		})
	}

	projectConfigs := make([]VSProjectConfiguration, 0, len(p.configs))
	for _, c := range p.configs {
		projectConfigs = append(projectConfigs, VSProjectConfiguration{
			Include:       c.name(),
			Configuration: c.unit.Configuration,
			Platform:      c.platform,
		})
	}

	propertyGroups := []VSPropertyGroup{
		{PreferredToolArchitecture: "x64"},
		{
			Label:                        "Globals",
			ProjectGuid:                  "{" + p.guid + "}",
			Keyword:                      "Win32Proj",
			WindowsTargetPlatformVersion: "10.0",
			ProjectName:                  p.name,
		},
	}
	itemDefinitions := make([]VSItemDefinitionGroup, 0, len(p.configs))
	for _, c := range p.configs {
		propertyGroups = append(propertyGroups, g.configurationPropertyGroups(c)...)
		itemDefinitions = append(itemDefinitions, itemDefinitionGroup(c))
	}

	imports := []VSImport{
		{Project: `$(VCTargetsPath)\Microsoft.Cpp.Default.props`},
		{Project: `$(VCTargetsPath)\Microsoft.Cpp.props`},
		{Project: `$(UserRootDir)\Microsoft.Cpp.$(Platform).user.props`, Condition: `exists('$(UserRootDir)\Microsoft.Cpp.$(Platform).user.props')`, Label: "LocalAppDataPlatform"},
		{Project: `$(VCTargetsPath)\Microsoft.Cpp.targets`},
	}

	project := VSProject{
		DefaultTargets: "Build",
		ToolsVersion:   "17.0",
		XMLNS:          "http://schemas.microsoft.com/developer/msbuild/2003",
		PropertyGroups: propertyGroups,
		ItemGroups: []VSItemGroup{
			{Label: "ProjectConfigurations", ProjectConfigurations: projectConfigs},
			{ClCompiles: projectSources(projectDir, p)},
			{ProjectReferences: projectRefs},
		},
		ItemDefinitionGroups: itemDefinitions,
		Imports:              imports,
		ImportGroups:         []VSImportGroup{{Label: "ExtensionTargets"}},
	}

	output, err := xml.MarshalIndent(project, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(projectDir, p.name+".vcxproj"), []byte(xml.Header+string(output)), 0o644)
}

func (g *VS2022Gen) configurationPropertyGroups(c vsConfig) []VSPropertyGroup {
	u := c.unit
	debug, optimized := u.Debuggable, u.Optimized
	incremental := !optimized
	outDir := filepath.Join(g.buildDir, u.Variant) + `\`
	intDir := filepath.Join(g.buildDir, "QobsFiles", u.Variant, u.Name+".dir") + `\`
	ext := filepath.Ext(u.Name)

	return []VSPropertyGroup{
		{
			Condition:                c.condition(),
			Label:                    "Configuration",
			ConfigurationType:        configurationType(u.Kind),
			PlatformToolset:          "v143",
			CharacterSet:             "Unicode",
			UseDebugLibraries:        &debug,
			WholeProgramOptimization: &optimized,
		},
		{
			Condition:        c.condition(),
			OutDir:           outDir,
			IntDir:           intDir,
			TargetName:       strings.TrimSuffix(u.Name, ext),
			TargetExt:        ext,
			LinkIncremental:  &incremental,
			GenerateManifest: true,
		},
	}
}

func itemDefinitionGroup(c vsConfig) VSItemDefinitionGroup {
	u := c.unit
	trueVal := true
	debug := u.Debuggable

	compile := VSCppCompileDef{
		WarningLevel:                 "Level3",
		SDLCheck:                     true,
		AdditionalIncludeDirectories: parseIncludes(u.Cflags),
		PreprocessorDefinitions:      parseDefines(u.Cflags, u.Debuggable),
		ConformanceMode:              true,
		Optimization:                 "Disabled",
		RuntimeLibrary:               "MultiThreadedDLL",
	}
	if u.Debuggable {
		compile.DebugInformationFormat = "ProgramDatabase"
		compile.RuntimeLibrary = "MultiThreadedDebugDLL"
	}
	if u.Optimized {
		compile.Optimization = "MaxSpeed"
		compile.FunctionLevelLinking = &trueVal
		compile.IntrinsicFunctions = &trueVal
	} else {
		compile.BasicRuntimeChecks = "EnableFastChecks"
	}

	link := VSLinkDef{
		SubSystem:                "Console",
		GenerateDebugInformation: &debug,
		AdditionalDependencies:   parseLibraries(u.Ldflags, u.Kind != StaticLibrary),
		ProgramDataBaseFile:      `$(OutDir)$(TargetName).pdb`,
		AdditionalOptions:        "%(AdditionalOptions) /machine:" + c.machine,
	}
	if u.Optimized {
		link.EnableCOMDATFolding = &trueVal
		link.OptimizeReferences = &trueVal
	}

	return VSItemDefinitionGroup{Condition: c.condition(), ClCompile: compile, Link: link}
}

func (g *VS2022Gen) generateFiltersFile(projectDir string, p *vsProject) error {
	sources := projectSources(projectDir, p)
	clCompiles := make([]VSFiltersClCompile, 0, len(sources))
	for _, source := range sources {
		clCompiles = append(clCompiles, VSFiltersClCompile{Include: source.Include, Filter: "Source Files"})
	}
	filterGUID := strings.ToUpper(uuid.NewSHA1(uuid.NameSpaceURL, []byte("qobs:filter:"+p.name)).String())
	filters := VSFiltersProject{
		ToolsVersion: "17.0",
		XMLNS:        "http://schemas.microsoft.com/developer/msbuild/2003",
		ItemGroups: []VSFiltersItemGroup{
			{ClCompiles: clCompiles},
			{Filters: []VSFiltersFilter{{Include: "Source Files", UniqueIdentifier: "{" + filterGUID + "}", Extensions: "cpp;c;cc;cxx;c++;cppm;ixx;def;odl;idl;hpj;bat;asm;asmx"}}},
		},
	}
	output, err := xml.MarshalIndent(filters, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(projectDir, p.name+".vcxproj.filters"), []byte(xml.Header+string(output)), 0o644)
}

func (g *VS2022Gen) Invoke(buildDir string) error {
	msbuild, err := FindMsbuild()
	if err != nil {
		return err
	}

	// one solution configuration per unit configuration, built in order
	var configs []vsConfig
	for _, u := range sortedUnits(g.units) {
		platform, machine, err := vsPlatform(u.Arch)
		if err != nil {
			return err
		}
		c := vsConfig{unit: u, platform: platform, machine: machine}
		if !slices.ContainsFunc(configs, func(o vsConfig) bool { return o.name() == c.name() }) {
			configs = append(configs, c)
		}
	}

	for _, c := range configs {
		cmd := exec.Command(msbuild, g.BuildFile(),
			"/p:Configuration="+c.unit.Configuration,
			"/p:Platform="+c.platform,
			"/nologo", "/verbosity:minimal")
		cmd.Dir = buildDir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("msbuild %s: %w", c.name(), err)
		}
	}
	return nil
}

func configurationType(kind Kind) string {
	switch kind {
	case StaticLibrary:
		return "StaticLibrary"
	case SharedLibrary:
		return "DynamicLibrary"
	}
	return "Application"
}

func parseIncludes(cflags []string) string {
	var includes []string
	for _, flag := range cflags {
		if after, ok := strings.CutPrefix(flag, "-I"); ok {
			includes = append(includes, after)
		}
	}
	return strings.Join(append(includes, "%(AdditionalIncludeDirectories)"), ";")
}

func parseDefines(cflags []string, isDebug bool) string {
	defines := []string{"WIN32", "_WINDOWS"}
	if isDebug {
		defines = append(defines, "_DEBUG")
	} else {
		defines = append(defines, "NDEBUG")
	}
	for _, flag := range cflags {
		if after, ok := strings.CutPrefix(flag, "-D"); ok {
			defines = append(defines, after)
		}
	}
	return strings.Join(append(defines, "%(PreprocessorDefinitions)"), ";")
}

// parseLibraries turns -l flags into .lib names. Linked units also get the
// Windows system libraries.
func parseLibraries(ldflags []string, linked bool) string {
	var libs []string
	if linked {
		libs = append(libs, "kernel32.lib", "user32.lib", "gdi32.lib", "winspool.lib", "comdlg32.lib", "advapi32.lib", "shell32.lib", "ole32.lib", "oleaut32.lib", "uuid.lib")
	}
	for _, flag := range ldflags {
		if after, ok := strings.CutPrefix(flag, "-l"); ok {
			if strings.HasSuffix(after, ".lib") {
				libs = append(libs, after)
			} else {
				libs = append(libs, after+".lib")
			}
		}
	}
	return strings.Join(append(libs, "%(AdditionalDependencies)"), ";")
}
