// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package neob

import (
	"reflect"
	"strings"

	"github.com/samber/lo"
)

// defaultBlockedTypeNames are wire names of known dangerous interop,
// automation and surrogate gadget types. They are rejected regardless of
// any allow rule.
var defaultBlockedTypeNames = []string{
	"System.Windows.Data.ObjectDataProvider",
	"System.Management.Automation.PSObject",
	"System.Configuration.Install.AssemblyInstaller",
	"System.Activities.Presentation.WorkflowDesigner",
	"System.Windows.ResourceDictionary",
	"System.Windows.Forms.BindingSource",
	"Microsoft.Exchange.Management.SystemManager.WinForms.ExchangeSettingsProvider",
	"Microsoft.VisualStudio.Text.Formatting.TextFormattingRunProperties",
	"System.Security.Principal.WindowsIdentity",
	"System.Security.Principal.WindowsPrincipal",
	"System.Runtime.Remoting.ObjRef",
	"System.IdentityModel.Tokens.SessionSecurityToken",
	"System.Data.DataViewManager",
}

// defaultBlockedNamespaces are namespace prefixes rejected outright.
var defaultBlockedNamespaces = []string{
	"System.CodeDom",
	"System.Workflow",
	"System.Activities",
	"System.Management.Automation",
	"Microsoft.PowerShell",
}

// defaultBlockedSimpleNames catch gadget types independent of namespace.
var defaultBlockedSimpleNames = []string{
	"ObjectDataProvider",
	"AssemblyInstaller",
	"TypeConfuseDelegate",
	"TextFormattingRunProperties",
}

// TypeGate is the security validator consulted whenever a concrete type is
// about to be instantiated from the stream. It is immutable after
// construction and safe for concurrent use.
type TypeGate struct {
	blockedTypes       map[string]struct{}
	blockedNamespaces  []string
	blockedSimpleNames map[string]struct{}
	allowedTypes       map[string]struct{}
	allowedNamespaces  []string
	allowDelegates     bool
	allowUnknown       bool
}

// TypeGateConfig collects the allow/block rules for building a TypeGate.
type TypeGateConfig struct {
	AllowedTypes      []string
	AllowedNamespaces []string
	BlockedTypes      []string
	BlockedNamespaces []string
	AllowDelegates    bool
	AllowUnknown      bool
}

// NewTypeGate builds a validator with the default block-list merged in.
func NewTypeGate(cfg TypeGateConfig) *TypeGate {
	toSet := func(items []string) map[string]struct{} {
		return lo.SliceToMap(items, func(s string) (string, struct{}) { return s, struct{}{} })
	}
	return &TypeGate{
		blockedTypes:       toSet(append(append([]string{}, defaultBlockedTypeNames...), cfg.BlockedTypes...)),
		blockedNamespaces:  append(append([]string{}, defaultBlockedNamespaces...), cfg.BlockedNamespaces...),
		blockedSimpleNames: toSet(defaultBlockedSimpleNames),
		allowedTypes:       toSet(cfg.AllowedTypes),
		allowedNamespaces:  cfg.AllowedNamespaces,
		allowDelegates:     cfg.AllowDelegates,
		allowUnknown:       cfg.AllowUnknown,
	}
}

// hasAllowRules reports whether any explicit allow configuration exists.
func (g *TypeGate) hasAllowRules() bool {
	return len(g.allowedTypes) > 0 || len(g.allowedNamespaces) > 0
}

// ValidateName runs the name-based block rules alone. It is consulted
// before type resolution so known gadget names are reported as unsafe, not
// merely unresolvable.
func (g *TypeGate) ValidateName(d TypeDescriptor) error {
	name := d.Name
	if _, ok := g.blockedTypes[name]; ok {
		return UnsafeTypeError(name, d.Assembly, "type is on the block list")
	}
	for _, ns := range g.blockedNamespaces {
		if strings.HasPrefix(name, ns+".") || name == ns {
			return UnsafeTypeError(name, d.Assembly, "namespace "+ns+" is blocked")
		}
	}
	if _, ok := g.blockedSimpleNames[d.SimpleName()]; ok {
		return UnsafeTypeError(name, d.Assembly, "type name "+d.SimpleName()+" is blocked")
	}
	return nil
}

// Validate decides whether a resolved type may be instantiated. The decision
// order is fixed: block-list, blocked namespace, blocked simple name,
// delegate heuristic, error-type exemption, allow-list, allowed namespace,
// then the allow-unknown fallback. A rejection is an unsafe-deserialization
// error carrying the offending name and the rule that fired.
func (g *TypeGate) Validate(d TypeDescriptor, t reflect.Type) error {
	name := d.Name
	if err := g.ValidateName(d); err != nil {
		return err
	}
	if isDelegateType(t) {
		if _, ok := g.allowedTypes[name]; !ok && !g.allowDelegates {
			return UnsafeTypeError(name, d.Assembly, "delegate types are blocked unless explicitly allowed")
		}
	}
	// Remote fault propagation depends on error types, so they always pass.
	if isErrorType(t) {
		return nil
	}
	// Builtin primitives carry no behavior and always pass, or allow-list
	// mode would have to enumerate every string and integer.
	if _, ok := builtinTypes[name]; ok {
		return nil
	}
	if _, ok := g.allowedTypes[name]; ok {
		return nil
	}
	for _, ns := range g.allowedNamespaces {
		if strings.HasPrefix(name, ns+".") || name == ns {
			return nil
		}
	}
	if g.allowUnknown {
		return nil
	}
	if g.hasAllowRules() {
		return UnsafeTypeError(name, d.Assembly, "type matched no allow rule and unknown types are disallowed")
	}
	return UnsafeTypeError(name, d.Assembly, "no allow rules configured and unknown types are disallowed")
}

func isDelegateType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Func
}

func isErrorType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(typeOfError) {
		return true
	}
	if t.Kind() != reflect.Interface && reflect.PtrTo(t).Implements(typeOfError) {
		return true
	}
	return t == typeOfRemoteErr
}
