package gamerpc

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	// GameServiceName is the fully-qualified name of the GameService service.
	GameServiceName = "colorclash.game.v1.GameService"
)

// Procedure paths of GameService.
const (
	GameServiceGetStateProcedure       = "/colorclash.game.v1.GameService/GetState"
	GameServiceSelectColorProcedure    = "/colorclash.game.v1.GameService/SelectColor"
	GameServiceSelectStakeProcedure    = "/colorclash.game.v1.GameService/SelectStake"
	GameServicePlaceBetProcedure       = "/colorclash.game.v1.GameService/PlaceBet"
	GameServiceResetSelectionProcedure = "/colorclash.game.v1.GameService/ResetSelection"
)

// game.proto declares no messages of its own: requests are Empty or
// StringValue and every reply is a Struct carrying the same JSON the HTTP
// routes return. The well-known files are registered by the imports in
// service.go.
var (
	gameFile           = mustRegisterGameFile()
	gameServiceMethods = gameFile.Services().ByName("GameService").Methods()
)

func gameFileProto() *descriptorpb.FileDescriptorProto {
	method := func(name, input, output string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(input),
			OutputType: proto.String(output),
		}
	}
	const (
		empty  = ".google.protobuf.Empty"
		str    = ".google.protobuf.StringValue"
		object = ".google.protobuf.Struct"
	)

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("colorclash/game/v1/game.proto"),
		Package: proto.String("colorclash.game.v1"),
		Syntax:  proto.String("proto3"),
		Dependency: []string{
			"google/protobuf/empty.proto",
			"google/protobuf/struct.proto",
			"google/protobuf/wrappers.proto",
		},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/mcdev12/colorclash/go/internal/gamerpc"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("GameService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("GetState", empty, object),
				method("SelectColor", str, object),
				method("SelectStake", str, object),
				method("PlaceBet", empty, object),
				method("ResetSelection", empty, object),
			},
		}},
	}
}

func mustRegisterGameFile() protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(gameFileProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic("gamerpc: build game.proto descriptor: " + err.Error())
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic("gamerpc: register game.proto descriptor: " + err.Error())
	}
	return fd
}
